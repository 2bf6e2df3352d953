package schedule

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueuePlanning is the queue carrying planning jobs.
	QueuePlanning = "planning"
	// TaskDailyPlanning plans every depot for the next day.
	TaskDailyPlanning = "planning:daily"

	// PlanHour is the local hour the daily run fires at.
	PlanHour = 21
	// MisfireGrace is how late a missed 21:00 run may still start.
	MisfireGrace = time.Hour
)

// DailyPlanningPayload pins the run to a calendar day so retries and
// catch-up enqueues stay idempotent. An empty Day means "tonight".
type DailyPlanningPayload struct {
	Day string `json:"day,omitempty"`
}

func NewDailyPlanningTask(day string) (*asynq.Task, error) {
	data, err := json.Marshal(DailyPlanningPayload{Day: day})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDailyPlanning, data), nil
}
