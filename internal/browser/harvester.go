// internal/browser/harvester.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// Harvester listens to CDP events for one tab, keeps the in-flight request
// table used for network idle, and republishes the interesting events on
// the page dispatcher.
type Harvester struct {
	logger     *zap.Logger
	dispatcher *Dispatcher
	mainFrame  cdp.FrameID

	sessionCtx     context.Context
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	lock     sync.RWMutex
	inflight map[network.RequestID]bool
	urls     map[network.RequestID]string
	// status of the last top-level document response, 0 until one arrives.
	documentStatus int

	isStarted bool
}

// NewHarvester creates a harvester for the tab behind sessionCtx.
func NewHarvester(sessionCtx context.Context, mainFrame cdp.FrameID, dispatcher *Dispatcher, logger *zap.Logger) *Harvester {
	return &Harvester{
		logger:     logger.Named("harvester"),
		dispatcher: dispatcher,
		mainFrame:  mainFrame,
		sessionCtx: sessionCtx,
		inflight:   make(map[network.RequestID]bool),
		urls:       make(map[network.RequestID]string),
	}
}

// Start enables the network, runtime and log domains and begins listening.
func (h *Harvester) Start() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.isStarted {
		return nil
	}

	h.listenerCtx, h.cancelListener = context.WithCancel(h.sessionCtx)
	chromedp.ListenTarget(h.listenerCtx, h.handle)

	if err := chromedp.Run(h.sessionCtx,
		network.Enable(),
		runtime.Enable(),
		log.Enable(),
	); err != nil {
		h.cancelListener()
		return fmt.Errorf("could not enable event domains: %w", err)
	}

	h.isStarted = true
	h.logger.Debug("Harvester started.")
	return nil
}

// Stop detaches the listener. Later events are dropped.
func (h *Harvester) Stop() {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.cancelListener != nil {
		h.cancelListener()
		h.cancelListener = nil
	}
	h.isStarted = false
}

func (h *Harvester) handle(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		h.handleRequestWillBeSent(e)
	case *network.EventResponseReceived:
		h.handleResponseReceived(e)
	case *network.EventLoadingFinished:
		h.finish(e.RequestID)
	case *network.EventLoadingFailed:
		h.handleLoadingFailed(e)
	case *runtime.EventConsoleAPICalled:
		h.dispatcher.Publish(ConsoleEvent{Level: consoleLevel(e.Type), Text: consoleText(e.Args), Source: "console-api"})
	case *log.EventEntryAdded:
		if e.Entry != nil {
			h.dispatcher.Publish(ConsoleEvent{Level: string(e.Entry.Level), Text: e.Entry.Text, Source: string(e.Entry.Source)})
		}
	case *runtime.EventExceptionThrown:
		if e.ExceptionDetails != nil {
			h.dispatcher.Publish(ExceptionEvent{Text: exceptionText(e.ExceptionDetails)})
		}
	}
}

// ResetDocument forgets the last document status ahead of a navigation.
func (h *Harvester) ResetDocument() {
	h.lock.Lock()
	h.documentStatus = 0
	h.lock.Unlock()
}

// DocumentStatus returns the status of the last top-level document response.
func (h *Harvester) DocumentStatus() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return h.documentStatus
}

// WaitNetworkIdle returns once no request has been in flight for
// quietPeriod.
func (h *Harvester) WaitNetworkIdle(ctx context.Context, quietPeriod time.Duration) error {
	if quietPeriod <= 0 {
		return nil
	}
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.lock.RLock()
			inflightCount := len(h.inflight)
			h.lock.RUnlock()

			if inflightCount > 0 {
				lastActivity = time.Now()
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}

func (h *Harvester) handleRequestWillBeSent(e *network.EventRequestWillBeSent) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.inflight[e.RequestID] = true
	if e.Request != nil {
		h.urls[e.RequestID] = e.Request.URL
	}
}

func (h *Harvester) handleResponseReceived(e *network.EventResponseReceived) {
	if e.Response == nil {
		return
	}
	main := e.Type == network.ResourceTypeDocument &&
		string(e.RequestID) == string(e.LoaderID) &&
		(h.mainFrame == "" || e.FrameID == h.mainFrame)
	if main {
		h.lock.Lock()
		h.documentStatus = int(e.Response.Status)
		h.lock.Unlock()
	}
	h.dispatcher.Publish(ResponseEvent{
		URL:          e.Response.URL,
		Status:       int(e.Response.Status),
		StatusText:   e.Response.StatusText,
		ResourceType: string(e.Type),
		MainDocument: main,
	})
}

func (h *Harvester) handleLoadingFailed(e *network.EventLoadingFailed) {
	h.lock.Lock()
	url := h.urls[e.RequestID]
	h.lock.Unlock()
	h.finish(e.RequestID)

	h.dispatcher.Publish(RequestFailedEvent{
		URL:          url,
		ErrorText:    e.ErrorText,
		ResourceType: string(e.Type),
		Canceled:     e.Canceled,
		CORS:         e.CorsErrorStatus != nil || strings.Contains(strings.ToLower(e.ErrorText), "cors"),
	})
}

func (h *Harvester) finish(id network.RequestID) {
	h.lock.Lock()
	defer h.lock.Unlock()
	delete(h.inflight, id)
	delete(h.urls, id)
}

// consoleLevel maps console API call types onto log levels.
func consoleLevel(t runtime.APIType) string {
	switch t {
	case runtime.APITypeError, runtime.APITypeAssert:
		return "error"
	case runtime.APITypeWarning:
		return "warning"
	default:
		return string(t)
	}
}

func consoleText(args []*runtime.RemoteObject) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteString(" ")
		}
		var val interface{}
		switch {
		case arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil:
			fmt.Fprintf(&b, "%v", val)
		case arg.Description != "":
			b.WriteString(arg.Description)
		default:
			fmt.Fprintf(&b, "[%s]", arg.Type)
		}
	}
	return b.String()
}

func exceptionText(d *runtime.ExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}
