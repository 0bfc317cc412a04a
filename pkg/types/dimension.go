package types

import "time"

// DeviceRow is a member of the device_details dimension.
type DeviceRow struct {
	Key        int64      `json:"id"`
	Browser    string     `json:"browser"`
	OS         string     `json:"os"`
	DeviceType DeviceType `json:"device_type"`
}

// UserRow is a member of the users dimension.
type UserRow struct {
	Key    int64  `json:"id"`
	UserID string `json:"ha_user_id"`
}

// LocationRow is a member of the locations dimension.
type LocationRow struct {
	Key                 int64  `json:"id"`
	Country             string `json:"country"`
	OfficialCountryName string `json:"official_country_name"`
	Continent           string `json:"continent"`
}

// DateRow is a member of the event_date dimension, keyed by the event timestamp.
type DateRow struct {
	Key       int64     `json:"id"`
	Time      time.Time `json:"time"`
	Month     string    `json:"month"`
	Year      int       `json:"year"`
	Date      string    `json:"date"`
	Day       string    `json:"day"`
	Quarter   string    `json:"quarter"`
	IsHoliday bool      `json:"is_holiday"`
}
