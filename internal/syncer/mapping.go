package syncer

import (
	"math"

	"strava-mirror/internal/database"
	"strava-mirror/internal/strava"
)

// athleteRecord maps the API profile onto the stored athlete row
func athleteRecord(a *strava.Athlete) *database.Athlete {
	return &database.Athlete{
		ID:              a.ID,
		Username:        a.Username,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		ProfileMedium:   a.ProfileMedium,
		Profile:         a.Profile,
		City:            a.City,
		State:           a.State,
		Country:         a.Country,
		Sex:             a.Sex,
		Weight:          a.Weight,
		FollowerCount:   a.FollowerCount,
		FriendCount:     a.FriendCount,
		Premium:         a.Premium,
		Summit:          a.Summit,
		StravaCreatedAt: a.CreatedAt,
		StravaUpdatedAt: a.UpdatedAt,
	}
}

func totalsRecord(t strava.Totals) database.Totals {
	return database.Totals{
		Count:            t.Count,
		Distance:         t.Distance,
		MovingTime:       t.MovingTime,
		ElapsedTime:      t.ElapsedTime,
		ElevationGain:    t.ElevationGain,
		AchievementCount: t.AchievementCount,
	}
}

func statsRecord(athleteID int64, s *strava.Stats) *database.Stats {
	return &database.Stats{
		AthleteID:                 athleteID,
		BiggestRideDistance:       s.BiggestRideDistance,
		BiggestClimbElevationGain: s.BiggestClimbElevationGain,
		RecentRideTotals:          totalsRecord(s.RecentRideTotals),
		RecentRunTotals:           totalsRecord(s.RecentRunTotals),
		RecentSwimTotals:          totalsRecord(s.RecentSwimTotals),
		YTDRideTotals:             totalsRecord(s.YTDRideTotals),
		YTDRunTotals:              totalsRecord(s.YTDRunTotals),
		YTDSwimTotals:             totalsRecord(s.YTDSwimTotals),
		AllRideTotals:             totalsRecord(s.AllRideTotals),
		AllRunTotals:              totalsRecord(s.AllRunTotals),
		AllSwimTotals:             totalsRecord(s.AllSwimTotals),
	}
}

// activityRecord maps a summary activity onto the stored row. Absent
// numbers decode as zero and absent optionals stay nil.
func activityRecord(athleteID int64, a *strava.Activity) *database.Activity {
	record := &database.Activity{
		ID:                   a.ID,
		AthleteID:            athleteID,
		Name:                 a.Name,
		Type:                 a.Type,
		SportType:            a.SportType,
		Distance:             a.Distance,
		MovingTime:           a.MovingTime,
		ElapsedTime:          a.ElapsedTime,
		TotalElevationGain:   a.TotalElevationGain,
		StartDate:            a.StartDate,
		StartDateLocal:       a.StartDateLocal,
		Timezone:             a.Timezone,
		UTCOffset:            a.UTCOffset,
		StartLatLng:          database.LatLng(a.StartLatLng),
		EndLatLng:            database.LatLng(a.EndLatLng),
		AchievementCount:     a.AchievementCount,
		KudosCount:           a.KudosCount,
		CommentCount:         a.CommentCount,
		AthleteCount:         a.AthleteCount,
		PhotoCount:           a.PhotoCount,
		Trainer:              a.Trainer,
		Commute:              a.Commute,
		Manual:               a.Manual,
		Private:              a.Private,
		Flagged:              a.Flagged,
		WorkoutType:          a.WorkoutType,
		AverageSpeed:         a.AverageSpeed,
		MaxSpeed:             a.MaxSpeed,
		AverageCadence:       a.AverageCadence,
		AverageHeartrate:     a.AverageHeartrate,
		MaxHeartrate:         a.MaxHeartrate,
		AverageWatts:         a.AverageWatts,
		MaxWatts:             a.MaxWatts,
		WeightedAverageWatts: a.WeightedAverageWatts,
		Kilojoules:           a.Kilojoules,
		DeviceWatts:          a.DeviceWatts,
		HasHeartrate:         a.HasHeartrate,
		Calories:             a.Calories,
		GearID:               a.GearID,
		DeviceName:           a.DeviceName,
		Description:          a.Description,
		LocationCity:         a.LocationCity,
		LocationState:        a.LocationState,
		LocationCountry:      a.LocationCountry,
	}

	// Strava reports suffer score as a float but it is always whole
	if a.SufferScore != nil {
		score := int(math.Round(*a.SufferScore))
		record.SufferScore = &score
	}

	if a.Map != nil {
		record.MapID = &a.Map.ID
		record.MapSummaryPolyline = &a.Map.SummaryPolyline
		record.MapResourceState = &a.Map.ResourceState
	}

	return record
}
