package events

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
	"github.com/hivecore/hivecore/internal/types"
)

// ToastSink raises a native OS notification for Critical alerts. It is
// never load-bearing: Notify failures (including "unsupported platform")
// are swallowed by the caller's logging, not propagated as a hive error.
//
// Grounded on the teacher's prior use of go-toast for agent-status
// desktop notifications; generalized here to fire only on
// AlertTriggered events whose payload is a Critical types.Alert.
type ToastSink struct {
	AppID string
}

// NewToastSink builds a sink. appID defaults to "hivecore" when empty.
func NewToastSink(appID string) *ToastSink {
	if appID == "" {
		appID = "hivecore"
	}
	return &ToastSink{AppID: appID}
}

func (t *ToastSink) Notify(ev Event) error {
	if ev.Kind != AlertTriggered {
		return nil
	}
	alert, ok := ev.Payload.(types.Alert)
	if !ok || alert.Level != types.AlertCritical {
		return nil
	}
	if runtime.GOOS != "windows" {
		// go-toast only drives the Windows Action Center; elsewhere this
		// is a documented no-op rather than a failure.
		return nil
	}

	notification := toast.Notification{
		AppID:   t.AppID,
		Title:   fmt.Sprintf("hivecore: %s", alert.Title),
		Message: alert.Description,
	}
	return notification.Push()
}
