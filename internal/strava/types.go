package strava

import "time"

// Athlete is the athlete object returned by GET /athlete and embedded in
// token exchange responses
type Athlete struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	FirstName     string     `json:"firstname"`
	LastName      string     `json:"lastname"`
	ProfileMedium string     `json:"profile_medium"`
	Profile       string     `json:"profile"`
	City          string     `json:"city"`
	State         string     `json:"state"`
	Country       string     `json:"country"`
	Sex           string     `json:"sex"`
	Weight        *float64   `json:"weight"`
	FollowerCount int        `json:"follower_count"`
	FriendCount   int        `json:"friend_count"`
	Premium       bool       `json:"premium"`
	Summit        bool       `json:"summit"`
	CreatedAt     *time.Time `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

// Totals is one block of aggregate statistics
type Totals struct {
	Count            int     `json:"count"`
	Distance         float64 `json:"distance"`
	MovingTime       int     `json:"moving_time"`
	ElapsedTime      int     `json:"elapsed_time"`
	ElevationGain    float64 `json:"elevation_gain"`
	AchievementCount int     `json:"achievement_count"`
}

// Stats is returned by GET /athletes/{id}/stats
type Stats struct {
	BiggestRideDistance       float64 `json:"biggest_ride_distance"`
	BiggestClimbElevationGain float64 `json:"biggest_climb_elevation_gain"`
	RecentRideTotals          Totals  `json:"recent_ride_totals"`
	RecentRunTotals           Totals  `json:"recent_run_totals"`
	RecentSwimTotals          Totals  `json:"recent_swim_totals"`
	YTDRideTotals             Totals  `json:"ytd_ride_totals"`
	YTDRunTotals              Totals  `json:"ytd_run_totals"`
	YTDSwimTotals             Totals  `json:"ytd_swim_totals"`
	AllRideTotals             Totals  `json:"all_ride_totals"`
	AllRunTotals              Totals  `json:"all_run_totals"`
	AllSwimTotals             Totals  `json:"all_swim_totals"`
}

// ActivityMap is the polyline summary attached to an activity
type ActivityMap struct {
	ID              string `json:"id"`
	SummaryPolyline string `json:"summary_polyline"`
	ResourceState   int    `json:"resource_state"`
}

// Activity is a summary activity from GET /athlete/activities. Fields the
// service does not store are not decoded.
type Activity struct {
	ID                   int64        `json:"id"`
	Name                 string       `json:"name"`
	Type                 string       `json:"type"`
	SportType            string       `json:"sport_type"`
	Distance             float64      `json:"distance"`
	MovingTime           int          `json:"moving_time"`
	ElapsedTime          int          `json:"elapsed_time"`
	TotalElevationGain   float64      `json:"total_elevation_gain"`
	StartDate            time.Time    `json:"start_date"`
	StartDateLocal       time.Time    `json:"start_date_local"`
	Timezone             string       `json:"timezone"`
	UTCOffset            float64      `json:"utc_offset"`
	StartLatLng          []float64    `json:"start_latlng"`
	EndLatLng            []float64    `json:"end_latlng"`
	AchievementCount     int          `json:"achievement_count"`
	KudosCount           int          `json:"kudos_count"`
	CommentCount         int          `json:"comment_count"`
	AthleteCount         int          `json:"athlete_count"`
	PhotoCount           int          `json:"photo_count"`
	Trainer              bool         `json:"trainer"`
	Commute              bool         `json:"commute"`
	Manual               bool         `json:"manual"`
	Private              bool         `json:"private"`
	Flagged              bool         `json:"flagged"`
	WorkoutType          *int         `json:"workout_type"`
	AverageSpeed         float64      `json:"average_speed"`
	MaxSpeed             float64      `json:"max_speed"`
	AverageCadence       *float64     `json:"average_cadence"`
	AverageHeartrate     *float64     `json:"average_heartrate"`
	MaxHeartrate         *float64     `json:"max_heartrate"`
	AverageWatts         *float64     `json:"average_watts"`
	MaxWatts             *int         `json:"max_watts"`
	WeightedAverageWatts *int         `json:"weighted_average_watts"`
	Kilojoules           *float64     `json:"kilojoules"`
	DeviceWatts          *bool        `json:"device_watts"`
	HasHeartrate         bool         `json:"has_heartrate"`
	Calories             float64      `json:"calories"`
	SufferScore          *float64     `json:"suffer_score"`
	Map                  *ActivityMap `json:"map"`
	GearID               *string      `json:"gear_id"`
	DeviceName           *string      `json:"device_name"`
	Description          *string      `json:"description"`
	LocationCity         *string      `json:"location_city"`
	LocationState        *string      `json:"location_state"`
	LocationCountry      *string      `json:"location_country"`
}
