package etl

import (
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/importer/pkg/models"
)

type taskClass struct {
	taskType string
	keywords []string
	hours    float64
}

// taskClasses is checked in order; the first class with a matching keyword wins.
var taskClasses = []taskClass{
	{"INSPECTION", []string{"inspect", "check", "examin", "audit", "survey", "walkthrough", "walkdown"}, 0.5},
	{"CLEANING", []string{"clean", "wash", "flush", "purge", "vacuum", "wipe", "sanitiz", "degreas"}, 1},
	{"LUBRICATION", []string{"lubric", "grease", "oil", "lube"}, 0.5},
	{"REPLACEMENT", []string{"replac", "change", "swap", "renew", "install"}, 2},
	{"CALIBRATION", []string{"calibrat", "adjust", "align", "tune", "tuning"}, 1.5},
	{"TESTING", []string{"test", "verif", "measur", "diagnos", "trial"}, 1},
	{"REPAIR", []string{"repair", "fix", "weld", "patch", "rebuild", "restor"}, 3},
}

const otherTaskHours = 1

// ClassifyTask picks a task type from the words of a work description and
// returns it with its default duration in hours.
func ClassifyTask(text string) (string, float64) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	for _, c := range taskClasses {
		for _, w := range words {
			for _, k := range c.keywords {
				if strings.HasPrefix(w, k) {
					return c.taskType, c.hours
				}
			}
		}
	}
	return "OTHER", otherTaskHours
}

// Deriver splits preventive work orders into a retained work order, a
// reusable maintenance task, a recurring schedule and, for rows that are not
// completed yet, an open work order for the next occurrence.
type Deriver struct {
	now func() time.Time
}

func NewDeriver(now func() time.Time) *Deriver {
	if now == nil {
		now = time.Now
	}
	return &Deriver{now: now}
}

// Step indexes inside a derived work unit.
const (
	stepTask     = 1
	stepSchedule = 2
)

// A derived task or schedule is shared only by rows describing the same
// work on the same asset.
var (
	taskReuseKeys     = []string{"name", "assetId", "taskType"}
	scheduleReuseKeys = []string{"name", "assetId", "taskId", "frequency", "interval", "cronExpression"}
)

// Derive builds the work unit of one resolved work-order record. A schedule
// is only derived when the row has both a recurrence and a resolved asset.
func (d *Deriver) Derive(rowNum int, wo models.Record, tenantID int64) (models.WorkUnit, []string) {
	unit := models.WorkUnit{Row: rowNum, Steps: []models.Step{
		{Entity: models.EntityWorkOrders, Role: models.RolePrimary, Record: wo},
	}}
	if wo.Text("workType") != "PREVENTIVE" {
		return unit, nil
	}

	title := wo.Text("title")
	desc := wo.Text("description")
	assetID, hasAsset := wo["assetId"].ID()

	taskType, hours := ClassifyTask(title + " " + desc)
	if est, ok := wo["estimatedHours"].Number(); ok {
		hours = est
	}
	task := models.Record{
		"name":           models.StringValue(title),
		"taskType":       models.EnumValue(taskType),
		"estimatedHours": models.NumberValue(hours),
	}
	if desc != "" {
		task["description"] = models.StringValue(desc)
	}
	if hasAsset {
		task["assetId"] = models.IDValue(assetID)
	}
	unit.Steps = append(unit.Steps, models.Step{
		Entity: models.EntityMaintenanceTasks, Role: models.RoleTask,
		Record: WithTenant(task, tenantID), ReuseOn: taskReuseKeys,
	})

	descriptor := wo.Text("recurrence")
	if descriptor == "" {
		return unit, nil
	}
	rec, err := ParseRecurrence(descriptor)
	if err != nil {
		return unit, []string{fmt.Sprintf("Row %d: recurrence %q was not recognized; no schedule created", rowNum, descriptor)}
	}
	if !hasAsset {
		return unit, []string{fmt.Sprintf("Row %d: recurrence %q needs a resolvable asset; no schedule created", rowNum, descriptor)}
	}

	now := d.now().UTC()
	completed := wo.Text("status") == "COMPLETED"
	base := now
	if completed {
		if t, ok := wo["completedDate"].Date(); ok {
			base = t
		}
	} else if t, ok := wo["dueDate"].Date(); ok {
		base = t
	}
	next := rec.NextAfter(base, now)

	schedule := models.Record{
		"name":        models.StringValue(title),
		"frequency":   models.EnumValue(rec.Frequency),
		"interval":    models.NumberValue(float64(rec.Interval)),
		"startDate":   models.DateValue(base),
		"nextDueDate": models.DateValue(next),
		"assetId":     models.IDValue(assetID),
		"active":      models.BoolValue(true),
	}
	if rec.Cron != "" {
		schedule["cronExpression"] = models.StringValue(rec.Cron)
	}
	if desc != "" {
		schedule["description"] = models.StringValue(desc)
	}
	unit.Steps = append(unit.Steps, models.Step{
		Entity: models.EntityMaintenanceSchedules, Role: models.RoleSchedule,
		Record: WithTenant(schedule, tenantID), Links: map[string]int{"taskId": stepTask}, ReuseOn: scheduleReuseKeys,
	})

	// A completed row stays the historical record; only open rows get a
	// work order for the next occurrence.
	if completed {
		return unit, nil
	}
	follow := models.Record{
		"title":    models.StringValue(title),
		"status":   models.EnumValue("OPEN"),
		"workType": models.EnumValue("PREVENTIVE"),
		"dueDate":  models.DateValue(next),
		"assetId":  models.IDValue(assetID),
	}
	for _, k := range []string{"description", "priority", "assignedToId", "locationId", "estimatedHours", "recurrence"} {
		if v, ok := wo[k]; ok {
			follow[k] = v
		}
	}
	unit.Steps = append(unit.Steps, models.Step{
		Entity: models.EntityWorkOrders, Role: models.RoleFollowUp,
		Record: WithTenant(follow, tenantID), Links: map[string]int{"scheduleId": stepSchedule},
	})
	return unit, nil
}
