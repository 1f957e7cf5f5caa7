package models

// UserDay is one day of a single user's activity as returned by
// GET /user/:userId/:from/:to/.
type UserDay struct {
	Date         string `json:"date"`
	WeekDay      string `json:"weekDay"`
	Weekend      bool   `json:"weekend"`
	Activity     []int  `json:"activity"`
	UserID       string `json:"userId"`
	UserName     string `json:"userName,omitempty"`
	UserRealName string `json:"userRealName,omitempty"`
}

// UserSummary is a user's per-slot average over a date range as returned by
// GET /activity/:from/:to.
type UserSummary struct {
	UserID       string    `json:"userId"`
	UserSum      int64     `json:"userSum"`
	UserDays     int       `json:"userDays"`
	Activity     []float64 `json:"activity"`
	UserName     string    `json:"userName,omitempty"`
	UserRealName string    `json:"userRealName,omitempty"`
}

type UserActivityResponse struct {
	OK     bool      `json:"ok"`
	UserID string    `json:"userId"`
	Data   []UserDay `json:"data"`
}

type UsersActivityResponse struct {
	OK   bool          `json:"ok"`
	Data []UserSummary `json:"data"`
}
