package workflow

import "time"

// SLAStatus SLA 状态
type SLAStatus string

// SLA 状态集合
const (
	SLAOK      SLAStatus = "OK"       // 剩余时间充足
	SLAAtRisk  SLAStatus = "AT_RISK"  // 剩余时间低于告警阈值
	SLAOverdue SLAStatus = "OVERDUE"  // 已超期
	SLAPaused  SLAStatus = "PAUSED"   // 暂停中,计时冻结
	SLANone    SLAStatus = "NONE"     // 当前状态不计 SLA
)

// SLAClock SLA 时钟
// 按状态配置处理时限,处理暂停/恢复的时间补偿
type SLAClock struct {
	durations       map[State]time.Duration
	atRiskThreshold time.Duration
}

// DefaultSLADurations 各状态默认处理时限
// 评审类状态 5 天,执行阶段时限由课题立项书约定,这里只管流程节点
func DefaultSLADurations() map[State]time.Duration {
	day := 24 * time.Hour
	return map[State]time.Duration{
		StateFacultyReview:           5 * day,
		StateSchoolSelectionReview:   5 * day,
		StateOutlineCouncilReview:    10 * day,
		StateChangesRequested:        7 * day,
		StateFacultyAcceptanceReview: 5 * day,
		StateSchoolAcceptanceReview:  5 * day,
		StateHandover:                10 * day,
	}
}

// NewSLAClock 创建 SLA 时钟
// durations 为空时使用默认时限,threshold<=0 时默认 2 天
func NewSLAClock(durations map[State]time.Duration, threshold time.Duration) *SLAClock {
	if durations == nil {
		durations = DefaultSLADurations()
	}
	if threshold <= 0 {
		threshold = 48 * time.Hour
	}
	return &SLAClock{durations: durations, atRiskThreshold: threshold}
}

// Start 进入计 SLA 状态时计算起点与截止时间
// 状态不计 SLA 时返回 ok=false,调用方清空 SLA 字段
func (c *SLAClock) Start(state State, now time.Time) (start, deadline time.Time, ok bool) {
	d, found := c.durations[state]
	if !found {
		return time.Time{}, time.Time{}, false
	}
	return now, now.Add(d), true
}

// ResumeDeadline 恢复时补偿暂停时长
// 新截止时间 = 原截止时间 + (now - pausedAt),暂停时长一毫秒不丢
// 从未暂停(pausedAt 为零值)时原样返回,视为空操作
func ResumeDeadline(deadline time.Time, pausedAt time.Time, now time.Time) (time.Time, time.Duration) {
	if pausedAt.IsZero() || deadline.IsZero() {
		return deadline, 0
	}
	paused := now.Sub(pausedAt)
	if paused < 0 {
		paused = 0
	}
	return deadline.Add(paused), paused
}

// StatusAt 计算某时刻的 SLA 状态
// PAUSED 状态优先于超期/告警判定
func (c *SLAClock) StatusAt(state State, deadline time.Time, now time.Time) SLAStatus {
	if state == StatePaused {
		return SLAPaused
	}
	if deadline.IsZero() {
		return SLANone
	}
	if now.After(deadline) {
		return SLAOverdue
	}
	if deadline.Sub(now) <= c.atRiskThreshold {
		return SLAAtRisk
	}
	return SLAOK
}

// Remaining 剩余处理时间(已超期为负)
func Remaining(deadline time.Time, now time.Time) time.Duration {
	if deadline.IsZero() {
		return 0
	}
	return deadline.Sub(now)
}
