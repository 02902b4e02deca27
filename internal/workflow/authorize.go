package workflow

// Actor 执行动作的用户
type Actor struct {
	ID        string
	Name      string
	Role      Role
	FacultyID string
}

// Subject 鉴权所需的课题快照
type Subject struct {
	ID        string
	State     State
	OwnerID   string
	FacultyID string
}

// Authorize 判定用户此刻能否对课题执行指定动作
// 三项检查全部通过才放行:
//  1. 状态机允许 (state, action) 组合
//  2. 角色在该边的允许角色集合内,且 QUAN_LY_KHOA 须与课题同院系
//  3. 所有权类动作(提交/重提/取消/撤回等)须由负责人本人执行
//
// UI 的可见性过滤只是便利,不是安全边界,执行时必须重新鉴权
func Authorize(actor Actor, subject Subject, action Action) error {
	t, ok := FindTransition(subject.State, action)
	if !ok {
		return NewError(CodeWrongState,
			"action "+string(action)+" is not allowed from state "+string(subject.State))
	}

	roleAllowed := false
	for _, r := range t.AllowedRoles {
		if r == actor.Role {
			roleAllowed = true
			break
		}
	}
	if !roleAllowed {
		return NewError(CodeWrongRole,
			"role "+string(actor.Role)+" may not perform "+string(action))
	}

	// 角色正确还不够: 院系管理员只能处理本院系课题
	if t.RequireFaculty && actor.Role == RoleQuanLyKhoa && actor.FacultyID != subject.FacultyID {
		return NewError(CodeWrongRole, "actor faculty does not match proposal faculty")
	}

	if t.RequireOwner && actor.Role == RoleGiangVien && actor.ID != subject.OwnerID {
		return NewError(CodeNotOwner, "only the proposal owner may perform "+string(action))
	}

	return nil
}
