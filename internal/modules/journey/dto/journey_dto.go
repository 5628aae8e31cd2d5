package dto

type AdvanceDayRequest struct {
	Day        int    `json:"day" binding:"required,min=1"`
	Reflection string `json:"reflection" binding:"required"`
}
