package workflow

// State 课题生命周期状态
type State string

// 课题生命周期状态集合
// 主线: DRAFT → FACULTY_REVIEW → SCHOOL_SELECTION_REVIEW → OUTLINE_COUNCIL_REVIEW
//       → APPROVED → IN_PROGRESS → FACULTY_ACCEPTANCE_REVIEW
//       → SCHOOL_ACCEPTANCE_REVIEW → HANDOVER → COMPLETED
// 异常分支: CHANGES_REQUESTED / PAUSED 以及终态 CANCELLED / WITHDRAWN / REJECTED
const (
	StateDraft                   State = "DRAFT"
	StateFacultyReview           State = "FACULTY_REVIEW"
	StateSchoolSelectionReview   State = "SCHOOL_SELECTION_REVIEW"
	StateOutlineCouncilReview    State = "OUTLINE_COUNCIL_REVIEW"
	StateChangesRequested        State = "CHANGES_REQUESTED"
	StateApproved                State = "APPROVED"
	StateInProgress              State = "IN_PROGRESS"
	StateFacultyAcceptanceReview State = "FACULTY_ACCEPTANCE_REVIEW"
	StateSchoolAcceptanceReview  State = "SCHOOL_ACCEPTANCE_REVIEW"
	StateHandover                State = "HANDOVER"
	StateCompleted               State = "COMPLETED"
	StatePaused                  State = "PAUSED"
	StateCancelled               State = "CANCELLED"
	StateWithdrawn               State = "WITHDRAWN"
	StateRejected                State = "REJECTED"
)

// AllStates 所有合法状态（穷举集合,状态校验与指标采集共用）
var AllStates = []State{
	StateDraft,
	StateFacultyReview,
	StateSchoolSelectionReview,
	StateOutlineCouncilReview,
	StateChangesRequested,
	StateApproved,
	StateInProgress,
	StateFacultyAcceptanceReview,
	StateSchoolAcceptanceReview,
	StateHandover,
	StateCompleted,
	StatePaused,
	StateCancelled,
	StateWithdrawn,
	StateRejected,
}

// IsValidState 校验状态是否属于枚举集合
func IsValidState(s State) bool {
	for _, state := range AllStates {
		if state == s {
			return true
		}
	}
	return false
}

// IsTerminal 判断是否为终态（终态不允许任何转换）
func IsTerminal(s State) bool {
	switch s {
	case StateCompleted, StateCancelled, StateWithdrawn, StateRejected:
		return true
	default:
		return false
	}
}

// Action 工作流动作(记录于 workflow_logs.action)
type Action string

// 工作流动作集合
const (
	ActionSubmit           Action = "SUBMIT"
	ActionApprove          Action = "APPROVE"
	ActionAssignCouncil    Action = "ASSIGN_COUNCIL"
	ActionReturn           Action = "RETURN"
	ActionResubmit         Action = "RESUBMIT"
	ActionReject           Action = "REJECT"
	ActionStartProject     Action = "START_PROJECT"
	ActionSubmitAcceptance Action = "SUBMIT_ACCEPTANCE"
	ActionFacultyAccept    Action = "FACULTY_ACCEPT"
	ActionAccept           Action = "ACCEPT"
	ActionHandoverComplete Action = "HANDOVER_COMPLETE"
	ActionCancel           Action = "CANCEL"
	ActionWithdraw         Action = "WITHDRAW"
	ActionPause            Action = "PAUSE"
	ActionResume           Action = "RESUME"
)

// Role 用户角色(与 SSO 中的 realm 角色一致)
type Role string

// 角色集合(沿用越南语缩写,与历史数据保持一致)
const (
	RoleGiangVien     Role = "GIANG_VIEN"      // 讲师/课题负责人
	RoleQuanLyKhoa    Role = "QUAN_LY_KHOA"    // 院系管理员
	RolePhongKHCN     Role = "PHONG_KHCN"      // 科技处
	RoleThuKyHoiDong  Role = "THU_KY_HOI_DONG" // 评审委员会秘书
	RoleBanGiamHoc    Role = "BAN_GIAM_HOC"    // 校领导
)

// Transition 状态转换边
// Target 为 StateDynamic 时,目标状态由课题记录动态决定
// (RESUME 回到暂停前状态,RESUBMIT 回到退回前状态)
type Transition struct {
	From            State
	Action          Action
	Target          State
	AllowedRoles    []Role
	RequireOwner    bool // 仅课题负责人本人可执行
	RequireFaculty  bool // QUAN_LY_KHOA 须与课题同院系
	RequireCouncil  bool // 须评审委员会结论已定稿
	DynamicTarget   bool // 目标状态取自课题记录而非静态边
}

// StateDynamic 动态目标哨兵值
const StateDynamic State = ""

// transitions 状态转换表
// 每条边标注允许角色与结构性守卫,是鉴权与执行的唯一事实来源
var transitions = []Transition{
	// 阶段 A: 提交与评审
	{From: StateDraft, Action: ActionSubmit, Target: StateFacultyReview,
		AllowedRoles: []Role{RoleGiangVien}, RequireOwner: true},
	{From: StateFacultyReview, Action: ActionApprove, Target: StateSchoolSelectionReview,
		AllowedRoles: []Role{RoleQuanLyKhoa}, RequireFaculty: true},
	{From: StateFacultyReview, Action: ActionReturn, Target: StateChangesRequested,
		AllowedRoles: []Role{RoleQuanLyKhoa}, RequireFaculty: true},
	{From: StateFacultyReview, Action: ActionReject, Target: StateRejected,
		AllowedRoles: []Role{RoleQuanLyKhoa, RoleBanGiamHoc}, RequireFaculty: true},
	{From: StateSchoolSelectionReview, Action: ActionAssignCouncil, Target: StateOutlineCouncilReview,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StateSchoolSelectionReview, Action: ActionReturn, Target: StateChangesRequested,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StateSchoolSelectionReview, Action: ActionReject, Target: StateRejected,
		AllowedRoles: []Role{RolePhongKHCN, RoleBanGiamHoc}},
	{From: StateOutlineCouncilReview, Action: ActionApprove, Target: StateApproved,
		AllowedRoles: []Role{RoleBanGiamHoc}, RequireCouncil: true},
	{From: StateOutlineCouncilReview, Action: ActionReturn, Target: StateChangesRequested,
		AllowedRoles: []Role{RoleThuKyHoiDong, RoleBanGiamHoc}},
	{From: StateOutlineCouncilReview, Action: ActionReject, Target: StateRejected,
		AllowedRoles: []Role{RoleBanGiamHoc}, RequireCouncil: true},

	// 退回后重提(目标为退回前的评审状态)
	{From: StateChangesRequested, Action: ActionResubmit, Target: StateDynamic,
		AllowedRoles: []Role{RoleGiangVien}, RequireOwner: true, DynamicTarget: true},
	{From: StateChangesRequested, Action: ActionReject, Target: StateRejected,
		AllowedRoles: []Role{RoleQuanLyKhoa, RoleBanGiamHoc}},

	// 阶段 B: 立项与执行
	{From: StateApproved, Action: ActionStartProject, Target: StateInProgress,
		AllowedRoles: []Role{RoleGiangVien, RolePhongKHCN}, RequireOwner: false},
	{From: StateInProgress, Action: ActionSubmitAcceptance, Target: StateFacultyAcceptanceReview,
		AllowedRoles: []Role{RoleGiangVien}, RequireOwner: true},

	// 阶段 C: 验收与移交
	{From: StateFacultyAcceptanceReview, Action: ActionFacultyAccept, Target: StateSchoolAcceptanceReview,
		AllowedRoles: []Role{RoleQuanLyKhoa}, RequireFaculty: true},
	{From: StateFacultyAcceptanceReview, Action: ActionReturn, Target: StateChangesRequested,
		AllowedRoles: []Role{RoleQuanLyKhoa}, RequireFaculty: true},
	{From: StateSchoolAcceptanceReview, Action: ActionAccept, Target: StateHandover,
		AllowedRoles: []Role{RolePhongKHCN, RoleBanGiamHoc}},
	{From: StateSchoolAcceptanceReview, Action: ActionReturn, Target: StateChangesRequested,
		AllowedRoles: []Role{RolePhongKHCN, RoleBanGiamHoc}},
	{From: StateHandover, Action: ActionHandoverComplete, Target: StateCompleted,
		AllowedRoles: []Role{RoleGiangVien, RolePhongKHCN}},

	// 异常动作: 取消/撤回
	{From: StateDraft, Action: ActionCancel, Target: StateCancelled,
		AllowedRoles: []Role{RoleGiangVien}, RequireOwner: true},
	{From: StatePaused, Action: ActionCancel, Target: StateCancelled,
		AllowedRoles: []Role{RoleGiangVien}, RequireOwner: true},
	{From: StateFacultyReview, Action: ActionWithdraw, Target: StateWithdrawn,
		AllowedRoles: []Role{RoleGiangVien}, RequireOwner: true},
	{From: StateSchoolSelectionReview, Action: ActionWithdraw, Target: StateWithdrawn,
		AllowedRoles: []Role{RoleGiangVien}, RequireOwner: true},
	{From: StateOutlineCouncilReview, Action: ActionWithdraw, Target: StateWithdrawn,
		AllowedRoles: []Role{RoleGiangVien}, RequireOwner: true},
	{From: StateChangesRequested, Action: ActionWithdraw, Target: StateWithdrawn,
		AllowedRoles: []Role{RoleGiangVien}, RequireOwner: true},

	// 异常动作: 暂停/恢复(仅科技处)
	{From: StateFacultyReview, Action: ActionPause, Target: StatePaused,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StateSchoolSelectionReview, Action: ActionPause, Target: StatePaused,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StateOutlineCouncilReview, Action: ActionPause, Target: StatePaused,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StateChangesRequested, Action: ActionPause, Target: StatePaused,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StateApproved, Action: ActionPause, Target: StatePaused,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StateInProgress, Action: ActionPause, Target: StatePaused,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StateFacultyAcceptanceReview, Action: ActionPause, Target: StatePaused,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StateSchoolAcceptanceReview, Action: ActionPause, Target: StatePaused,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StateHandover, Action: ActionPause, Target: StatePaused,
		AllowedRoles: []Role{RolePhongKHCN}},
	{From: StatePaused, Action: ActionResume, Target: StateDynamic,
		AllowedRoles: []Role{RolePhongKHCN}, DynamicTarget: true},
}

// FindTransition 查找 (当前状态, 动作) 对应的转换边
// 未定义的组合返回 false,调用方据此拒绝请求
func FindTransition(from State, action Action) (Transition, bool) {
	for _, t := range transitions {
		if t.From == from && t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

// CanTransition 判断角色在当前状态下能否执行动作
// 纯函数,不含所有权/院系上下文检查(完整判定见 Authorize)
func CanTransition(from State, action Action, role Role) (State, bool) {
	t, ok := FindTransition(from, action)
	if !ok {
		return "", false
	}
	for _, r := range t.AllowedRoles {
		if r == role {
			return t.Target, true
		}
	}
	return "", false
}

// TransitionsFrom 列出某状态的全部出边(用于前端可见动作提示)
func TransitionsFrom(from State) []Transition {
	var out []Transition
	for _, t := range transitions {
		if t.From == from {
			out = append(out, t)
		}
	}
	return out
}
