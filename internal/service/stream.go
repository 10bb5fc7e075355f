package service

import (
	"encoding/json"
	"sync"
	"time"

	"filmeto.ai/engine/internal/core/domain"
	"filmeto.ai/engine/internal/protocol"
)

func progressItem(taskID string, kind domain.ProgressType, percent float64, message string) StreamItem {
	p := domain.NewProgress(taskID, kind, percent, message)
	return StreamItem{Progress: &p}
}

func errorResult(taskID, message string, start time.Time) *domain.TaskResult {
	return &domain.TaskResult{
		TaskID:        taskID,
		Status:        domain.StatusError,
		ErrorMessage:  message,
		ExecutionTime: time.Since(start).Seconds(),
	}
}

// translate converts an inbound control message into a stream item,
// rescaling plugin-reported percent from its own 0-100 frame into the
// 15-95 execution band. The second return reports a terminal result.
func (e *Engine) translate(task *domain.Task, msg protocol.Message, start time.Time) (*StreamItem, bool) {
	switch msg.Kind {
	case protocol.KindProgress:
		params := msg.Progress
		scaled := percentPluginStart + params.Percent*(percentPluginEnd-percentPluginStart)/100
		if scaled < percentPluginStart {
			scaled = percentPluginStart
		}
		if scaled > percentPluginEnd {
			scaled = percentPluginEnd
		}
		kind := domain.ProgressType(params.Type)
		switch kind {
		case domain.ProgressStarted, domain.ProgressUpdate, domain.ProgressCompleted, domain.ProgressFailed:
		default:
			kind = domain.ProgressUpdate
		}
		progress := domain.NewProgress(task.ID, kind, scaled, params.Message)
		progress.Data = params.Data
		return &StreamItem{Progress: &progress}, false

	case protocol.KindHeartbeat:
		progress := domain.NewProgress(task.ID, domain.ProgressHeartbeat, 0, "heartbeat")
		return &StreamItem{Progress: &progress}, false

	case protocol.KindResult:
		result := &domain.TaskResult{
			TaskID:          task.ID,
			Status:          msg.Result.Status,
			OutputFiles:     msg.Result.OutputFiles,
			OutputResources: decodeOutputResources(msg.Result.OutputResources),
			ErrorMessage:    msg.Result.ErrorMessage,
			ExecutionTime:   time.Since(start).Seconds(),
			Metadata:        msg.Result.Metadata,
		}
		return &StreamItem{Result: result}, true

	default:
		// Ready and pong never arrive mid-task; drop anything else.
		return nil, false
	}
}

func decodeOutputResources(raw []json.RawMessage) []domain.ResourceOutput {
	if len(raw) == 0 {
		return nil
	}
	out := make([]domain.ResourceOutput, 0, len(raw))
	for _, data := range raw {
		var resource domain.ResourceOutput
		if err := json.Unmarshal(data, &resource); err != nil {
			continue
		}
		out = append(out, resource)
	}
	return out
}

// heartbeatKeeper emits keep-alive items at a fixed interval while a
// plugin executes, so intermediary connections see traffic even when the
// plugin is quiet. It is joined, not just signalled, on shutdown.
type heartbeatKeeper struct {
	taskID   string
	interval time.Duration
	out      chan<- StreamItem

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func newHeartbeatKeeper(taskID string, interval time.Duration, out chan<- StreamItem) *heartbeatKeeper {
	return &heartbeatKeeper{
		taskID:   taskID,
		interval: interval,
		out:      out,
		stopCh:   make(chan struct{}),
	}
}

func (k *heartbeatKeeper) start() {
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		ticker := time.NewTicker(k.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				progress := domain.NewProgress(k.taskID, domain.ProgressHeartbeat, 0, "heartbeat")
				select {
				case k.out <- StreamItem{Progress: &progress}:
				case <-k.stopCh:
					return
				}
			case <-k.stopCh:
				return
			}
		}
	}()
}

// stop signals the keeper and waits for it to exit.
func (k *heartbeatKeeper) stop() {
	k.once.Do(func() { close(k.stopCh) })
	k.wg.Wait()
}
