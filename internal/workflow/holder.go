package workflow

// UnitPhongKHCN 科技处的特殊单位代码(非院系 ID)
const UnitPhongKHCN = "PHONG_KHCN"

// HolderAssignment 当前持有人
// HolderUnit 为院系 ID 或特殊单位代码,HolderUser 为具体用户(可空)
type HolderAssignment struct {
	HolderUnit string
	HolderUser string
}

// HolderInput 计算持有人所需的课题上下文
type HolderInput struct {
	OwnerID        string
	FacultyID      string
	HolderUnit     string // 当前持有单位(评审委员会指派后保留)
	HolderUser     string
	ActorID        string // 终态时记录决策人
	ActorFacultyID string
}

// HolderFor 由状态推导持有人
// 持有人是状态的纯函数,所有写路径统一经由此函数,禁止各处独立计算
func HolderFor(state State, in HolderInput) HolderAssignment {
	switch state {
	case StateDraft:
		// 未分派,仍在负责人手中
		return HolderAssignment{}

	case StateFacultyReview, StateFacultyAcceptanceReview:
		// 院系审查,院系管理员均可操作
		return HolderAssignment{HolderUnit: in.FacultyID}

	case StateSchoolSelectionReview, StateSchoolAcceptanceReview:
		return HolderAssignment{HolderUnit: UnitPhongKHCN}

	case StateOutlineCouncilReview:
		// 委员会指派后保留既有持有人(ASSIGN_COUNCIL 时另行设置)
		return HolderAssignment{HolderUnit: in.HolderUnit, HolderUser: in.HolderUser}

	case StateChangesRequested, StateApproved, StateInProgress, StateHandover:
		// 回到负责人手中
		return HolderAssignment{HolderUnit: in.FacultyID, HolderUser: in.OwnerID}

	case StatePaused:
		return HolderAssignment{HolderUnit: UnitPhongKHCN}

	case StateCancelled, StateRejected, StateWithdrawn:
		// 终态记录决策人,便于追溯
		unit := in.ActorFacultyID
		if unit == "" {
			unit = in.FacultyID
		}
		return HolderAssignment{HolderUnit: unit, HolderUser: in.ActorID}

	case StateCompleted:
		return HolderAssignment{}
	}

	// 状态集合封闭,新增状态必须补充持有人规则
	panic("workflow: no holder rule for state " + string(state))
}
