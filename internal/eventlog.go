// Event log: a second, always-JSON logrus sink distinct from the free-form
// operational log configured in logger.go. Every record is keyed by
// "event" and carries exactly the fields needed to reconstruct what
// happened without cross-referencing the operational log.

package schedcore

import (
	"os"

	"github.com/sirupsen/logrus"
)

const (
	EVENT_FIELD_KEY = "event"

	EventSchedulerStart = "SCHEDULER_START"
	EventSchedulerStop  = "SCHEDULER_STOP"
	EventResources      = "RESOURCES"
	EventAlgorithm      = "ALGORITHM"
	EventNewTask        = "NEWTASK"

	EventTaskStart       = "TASK_START"
	EventTaskStarted     = "TASK_STARTED"
	EventTaskSuspend     = "TASK_SUSPEND"
	EventTaskSuspended   = "TASK_SUSPENDED"
	EventTaskFinished    = "TASK_FINISHED"
	EventTaskAbort       = "TASK_ABORT"
	EventTaskAborted     = "TASK_ABORTED"
	EventTaskGetProgress = "TASK_GETPROGRESS"
	EventTaskGotProgress = "TASK_GOTPROGRESS"

	EventComputerUpdate    = "COMPUTER_UPDATE"
	EventComputerAlgoStart = "COMPUTER_ALGOSTART"
	EventComputerAlgoStop  = "COMPUTER_ALGOSTOP"

	EventExecutorNewSchedule = "EXECUTOR_NEWSCHEDULE"
	EventExecutorSuspend     = "EXECUTOR_SUSPEND"
	EventExecutorSuspended   = "EXECUTOR_SUSPENDED"
	EventExecutorResume      = "EXECUTOR_RESUME"

	EventSchedule = "SCHEDULE"
	EventEndTask  = "ENDTASK"

	EventFeedbackGetProgress = "FEEDBACK_GETPROGRESS"
	EventFeedbackGotProgress = "FEEDBACK_GOTPROGRESS"
)

// EventLogger is a thin, method-per-event wrapper around a dedicated
// logrus.Logger so call sites never build logrus.Fields by hand and the
// catalog below has exactly one implementation to audit against.
type EventLogger struct {
	log *logrus.Logger
}

func newEventLogger() *EventLogger {
	return &EventLogger{
		log: &logrus.Logger{
			Out:          os.Stderr,
			Formatter:    LogJsonFormatter,
			Level:        logrus.InfoLevel,
			ReportCaller: false,
		},
	}
}

// eventLog is the package-wide sink; task.go and the other core components
// call its methods directly, the way they'd call a component logger.
var eventLog = newEventLogger()

// SetOutput redirects the event stream, e.g. to a dedicated file configured
// alongside the operational log.
func (e *EventLogger) SetOutput(w *os.File) {
	e.log.SetOutput(w)
}

func (e *EventLogger) emit(event string, fields logrus.Fields) {
	if fields == nil {
		fields = logrus.Fields{}
	}
	fields[EVENT_FIELD_KEY] = event
	e.log.WithFields(fields).Info(event)
}

func (e *EventLogger) SchedulerStart(algorithm string, resources []string) {
	e.emit(EventSchedulerStart, logrus.Fields{"algorithm": algorithm, "resources": resources})
}

func (e *EventLogger) SchedulerStop() {
	e.emit(EventSchedulerStop, nil)
}

func (e *EventLogger) Resources(resources []string) {
	e.emit(EventResources, logrus.Fields{"resources": resources})
}

func (e *EventLogger) Algorithm(name string) {
	e.emit(EventAlgorithm, logrus.Fields{"name": name})
}

func (e *EventLogger) NewTask(taskID int, name string) {
	e.emit(EventNewTask, logrus.Fields{"id": taskID, "name": name})
}

func (e *EventLogger) TaskStart(taskID int, resource string, endProgress int, onEnd OnEnd) {
	e.emit(EventTaskStart, logrus.Fields{
		"id": taskID, "resource": resource, "end_progress": endProgress, "on_end": onEnd.String(),
	})
}

func (e *EventLogger) TaskStarted(taskID int) {
	e.emit(EventTaskStarted, logrus.Fields{"id": taskID})
}

func (e *EventLogger) TaskSuspend(taskID int) {
	e.emit(EventTaskSuspend, logrus.Fields{"id": taskID})
}

func (e *EventLogger) TaskSuspended(taskID int, progress int) {
	e.emit(EventTaskSuspended, logrus.Fields{"id": taskID, "progress": progress})
}

func (e *EventLogger) TaskFinished(taskID int) {
	e.emit(EventTaskFinished, logrus.Fields{"id": taskID})
}

func (e *EventLogger) TaskAbort(taskID int) {
	e.emit(EventTaskAbort, logrus.Fields{"id": taskID})
}

func (e *EventLogger) TaskAborted(taskID int) {
	e.emit(EventTaskAborted, logrus.Fields{"id": taskID})
}

func (e *EventLogger) TaskGetProgress(taskID int) {
	e.emit(EventTaskGetProgress, logrus.Fields{"id": taskID})
}

func (e *EventLogger) TaskGotProgress(taskID int, progress int) {
	e.emit(EventTaskGotProgress, logrus.Fields{"id": taskID, "progress": progress})
}

func (e *EventLogger) ComputerUpdate() {
	e.emit(EventComputerUpdate, nil)
}

func (e *EventLogger) ComputerAlgoStart(algorithm string) {
	e.emit(EventComputerAlgoStart, logrus.Fields{"algorithm": algorithm})
}

func (e *EventLogger) ComputerAlgoStop(algorithm string, durationSec float64) {
	e.emit(EventComputerAlgoStop, logrus.Fields{"algorithm": algorithm, "duration_sec": durationSec})
}

func (e *EventLogger) ExecutorNewSchedule() {
	e.emit(EventExecutorNewSchedule, nil)
}

func (e *EventLogger) ExecutorSuspend(resource string) {
	e.emit(EventExecutorSuspend, logrus.Fields{"resource": resource})
}

func (e *EventLogger) ExecutorSuspended(resource string) {
	e.emit(EventExecutorSuspended, logrus.Fields{"resource": resource})
}

func (e *EventLogger) ExecutorResume(resource string) {
	e.emit(EventExecutorResume, logrus.Fields{"resource": resource})
}

func (e *EventLogger) Schedule(scheduleJSON any) {
	e.emit(EventSchedule, logrus.Fields{"schedule": scheduleJSON})
}

func (e *EventLogger) EndTask(taskID int, resource string) {
	e.emit(EventEndTask, logrus.Fields{"id": taskID, "resource": resource})
}

func (e *EventLogger) FeedbackGetProgress(resources []string) {
	e.emit(EventFeedbackGetProgress, logrus.Fields{"resources": resources})
}

func (e *EventLogger) FeedbackGotProgress(resource string) {
	e.emit(EventFeedbackGotProgress, logrus.Fields{"resource": resource})
}
