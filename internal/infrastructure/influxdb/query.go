package influxdb

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// CountPoint is a single people-count reading returned from a query.
type CountPoint struct {
	Time  time.Time `json:"time"`
	Count int       `json:"count"`
}

// QueryCounts returns the people-count series for a device over a time range.
//
// Readings are returned oldest first.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - deviceID: The camera device ID to query
//   - start: Start of the time range (inclusive)
//   - stop: End of the time range (exclusive)
//
// Returns:
//   - []CountPoint: The readings in the range, oldest first
//   - error: If the client is disconnected or the query fails
func (c *Client) QueryCounts(ctx context.Context, deviceID int64, start, stop time.Time) ([]CountPoint, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	queryAPI := c.client.QueryAPI(c.cfg.Org)

	// Flux does not support parameter binding for table names, so the
	// device ID tag is interpolated. It is numeric, never user text.
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: %s, stop: %s)
  |> filter(fn: (r) => r._measurement == "people_count")
  |> filter(fn: (r) => r.device_id == %q)
  |> filter(fn: (r) => r._field == "count")
  |> sort(columns: ["_time"])`,
		c.cfg.Bucket,
		start.UTC().Format(time.RFC3339),
		stop.UTC().Format(time.RFC3339),
		strconv.FormatInt(deviceID, 10),
	)

	result, err := queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("querying counts: %w", err)
	}
	defer result.Close() //nolint:errcheck // Best effort cleanup

	var points []CountPoint
	for result.Next() {
		record := result.Record()

		count := 0
		switch v := record.Value().(type) {
		case int64:
			count = int(v)
		case float64:
			count = int(v)
		}

		points = append(points, CountPoint{
			Time:  record.Time(),
			Count: count,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading count series: %w", err)
	}

	return points, nil
}
