package strava

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"strava-mirror/internal/metrics"
)

// ListActivities fetches one page of the athlete's activities. An empty
// slice means the listing is exhausted.
func (c *Client) ListActivities(ctx context.Context, accessToken string, page, perPage int) ([]Activity, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	params := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}

	activities := []Activity{}
	if err := c.get(ctx, metrics.OpListActivities, accessToken, "/athlete/activities", params, &activities); err != nil {
		return nil, fmt.Errorf("failed to list activities (page %d): %w", page, err)
	}

	return activities, nil
}

// GetActivity fetches the detailed representation of one activity, including
// all segment efforts
func (c *Client) GetActivity(ctx context.Context, accessToken string, activityID int64) (*Activity, error) {
	params := url.Values{"include_all_efforts": {"true"}}

	var activity Activity
	path := "/activities/" + strconv.FormatInt(activityID, 10)
	if err := c.get(ctx, metrics.OpGetActivity, accessToken, path, params, &activity); err != nil {
		return nil, fmt.Errorf("failed to get activity %d: %w", activityID, err)
	}
	return &activity, nil
}

// ListAllActivities walks every page from 1 and returns the activities in
// request order. It stops on an empty page or on a page shorter than the page
// size; any page error fails the whole call.
func (c *Client) ListAllActivities(ctx context.Context, accessToken string) ([]Activity, error) {
	perPage := c.activitiesPerPage
	var all []Activity

	for page := 1; ; page++ {
		activities, err := c.ListActivities(ctx, accessToken, page, perPage)
		if err != nil {
			return nil, err
		}

		all = append(all, activities...)

		// If we got a full page, there might be more
		if len(activities) < perPage {
			break
		}
	}

	c.logger.Debug("listed all activities", "count", len(all))
	return all, nil
}
