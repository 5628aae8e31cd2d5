package dto

// ActivityRequest is the inbound shape from the CRUD layer: a verified
// caller identity (JWT middleware) plus an activity descriptor.
type ActivityRequest struct {
	ActivityKind string `json:"activity_kind" binding:"required,oneof=points_award quiz_completed daily_response mood_tracked"`
	Points       int    `json:"points" binding:"omitempty,min=0"`
	QuizCategory string `json:"quiz_category" binding:"omitempty,max=100"`
	PerfectScore bool   `json:"perfect_score"`
}
