package events

// Typed payloads carried by room-scoped events.

// DayAdvancedData contains data for DayAdvanced events.
type DayAdvancedData struct {
	CurrentDay int    `json:"current_day"`
	Status     string `json:"status"`
	NumDays    int    `json:"num_days"`
}

// PlayerJoinedData contains data for PlayerJoined events.
type PlayerJoinedData struct {
	PlayerID   string `json:"player_id"`
	PlayerName string `json:"player_name"`
}

// PlayerReadyData contains data for PlayerReady events.
type PlayerReadyData struct {
	PlayerID   string `json:"player_id"`
	ReadyCount int    `json:"ready_count"`
}

// TradeExecutedData contains data for TradeExecuted events.
type TradeExecutedData struct {
	PlayerID string  `json:"player_id"`
	Ticker   string  `json:"ticker"`
	Type     string  `json:"type"`
	Shares   int     `json:"shares"`
	Price    float64 `json:"price"`
}

// GameEndedData contains data for GameEnded events.
type GameEndedData struct {
	FinalDay int `json:"final_day"`
}

// TimerUpdatedData contains data for TimerUpdated events.
type TimerUpdatedData struct {
	DayTimeLimit int `json:"day_time_limit"`
}
