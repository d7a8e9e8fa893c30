package sandbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/eduforge/gamehost/internal/domain/protocol"
	"github.com/eduforge/gamehost/internal/infrastructure/logging"
	"github.com/eduforge/gamehost/internal/shared/id"
)

// maxTimerDrain bounds how many queued timer callbacks run per load, so a
// game that reschedules itself forever cannot wedge validation.
const maxTimerDrain = 1000

// HeadlessConfig tunes the headless surface.
type HeadlessConfig struct {
	// Timeout interrupts script execution that runs too long.
	Timeout time.Duration
}

// ConsoleEntry is one captured console call from embedded content.
type ConsoleEntry struct {
	Level   string
	Message string
}

// Headless executes a game document in a capability-stripped goja VM with
// no real DOM, network, or host access. It exists for publish-time
// validation: load the document, drain its timers, and observe what the
// game emits through the message bridge.
//
// Headless is not safe for concurrent use; the pool hands each instance to
// one caller at a time.
type Headless struct {
	surfaceID id.SurfaceID
	cfg       HeadlessConfig
	log       *logging.Logger

	vm      *goja.Runtime
	binding *Binding
	closed  bool

	winListeners map[string][]goja.Callable
	docListeners map[string][]goja.Callable
	timerQueue   []queuedTimer
	nextTimerID  int64
	console      []ConsoleEntry

	// Envelopes produced while a script is executing; flushed to the
	// binding after the VM is quiescent.
	outbox []Envelope
}

type queuedTimer struct {
	timerID int64
	fn      goja.Callable
}

// NewHeadless creates an unbound headless surface.
func NewHeadless(cfg HeadlessConfig, log *logging.Logger) *Headless {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	sid := id.NewSurfaceID()
	return &Headless{
		surfaceID: sid,
		cfg:       cfg,
		log:       log.Named("headless").With(zap.String("surface_id", sid.String())),
	}
}

// ID returns the surface identity.
func (s *Headless) ID() id.SurfaceID { return s.surfaceID }

// Bind attaches the surface's one listener set.
func (s *Headless) Bind(b Binding) error {
	if s.binding != nil {
		return ErrListenerBound
	}
	s.binding = &b
	return nil
}

// Unbind detaches the listener.
func (s *Headless) Unbind() {
	s.binding = nil
}

// Close tears the VM down.
func (s *Headless) Close() error {
	s.closed = true
	s.vm = nil
	s.binding = nil
	return nil
}

// Console returns the console output captured since the last load.
func (s *Headless) Console() []ConsoleEntry {
	out := make([]ConsoleEntry, len(s.console))
	copy(out, s.console)
	return out
}

// Load parses the document, executes its inline scripts in a fresh VM,
// dispatches the load event, and drains queued timers. The binding's
// OnLoad fires before any envelope the scripts produced, matching the
// order a real surface delivers them in.
func (s *Headless) Load(document string) error {
	if s.closed {
		return ErrSurfaceClosed
	}

	s.vm = goja.New()
	s.winListeners = make(map[string][]goja.Callable)
	s.docListeners = make(map[string][]goja.Callable)
	s.timerQueue = nil
	s.console = nil
	s.outbox = nil

	if err := s.installGlobals(); err != nil {
		s.emitError(err)
		return err
	}

	scripts, err := inlineScripts(document)
	if err != nil {
		s.emitError(err)
		return err
	}

	interrupt := time.AfterFunc(s.cfg.Timeout, func() {
		s.vm.Interrupt("execution timeout")
	})
	defer interrupt.Stop()

	for i, src := range scripts {
		if _, err := s.vm.RunString(src); err != nil {
			s.log.Debug("script error", zap.Int("script", i), zap.Error(err))
			s.appendConsole("error", err.Error())
		}
	}

	s.dispatch(s.winListeners["load"])
	s.drainTimers()

	if s.binding != nil && s.binding.OnLoad != nil {
		s.binding.OnLoad()
	}
	s.flushOutbox()
	return nil
}

// Post delivers a host message to the document's message listeners.
func (s *Headless) Post(m *protocol.Message) error {
	if s.closed || s.vm == nil {
		return ErrSurfaceClosed
	}

	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	var payload map[string]interface{}
	if err := sonic.Unmarshal(data, &payload); err != nil {
		return err
	}

	event := s.vm.NewObject()
	event.Set("data", s.vm.ToValue(payload))
	event.Set("origin", "host")

	for _, fn := range s.winListeners["message"] {
		if _, err := fn(goja.Undefined(), s.vm.ToValue(event)); err != nil {
			s.appendConsole("error", err.Error())
		}
	}
	s.drainTimers()
	s.flushOutbox()
	return nil
}

// installGlobals builds the minimal browser-shaped environment games
// expect, with every host capability removed.
func (s *Headless) installGlobals() error {
	vm := s.vm

	for _, name := range []string{"require", "process", "module", "exports", "globalThis"} {
		if err := vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		lvl := level
		console.Set(lvl, func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, a := range call.Arguments {
				parts = append(parts, a.String())
			}
			s.appendConsole(lvl, strings.Join(parts, " "))
			return goja.Undefined()
		})
	}
	vm.Set("console", console)

	win := vm.NewObject()
	parent := vm.NewObject()
	parent.Set("postMessage", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Undefined()
		}
		data, err := sonic.Marshal(call.Arguments[0].Export())
		if err != nil {
			s.appendConsole("error", fmt.Sprintf("postMessage marshal: %v", err))
			return goja.Undefined()
		}
		s.outbox = append(s.outbox, Envelope{Origin: s.surfaceID, Data: data})
		return goja.Undefined()
	})
	win.Set("parent", parent)
	win.Set("addEventListener", s.listenerAdder(s.winListeners))
	win.Set("removeEventListener", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	win.Set("innerWidth", 1280)
	win.Set("innerHeight", 720)

	doc := vm.NewObject()
	doc.Set("addEventListener", s.listenerAdder(s.docListeners))
	doc.Set("removeEventListener", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	doc.Set("getElementById", func(call goja.FunctionCall) goja.Value { return goja.Null() })
	doc.Set("querySelector", func(call goja.FunctionCall) goja.Value { return goja.Null() })
	doc.Set("documentElement", s.styledElement())
	doc.Set("body", s.styledElement())
	win.Set("document", doc)

	vm.Set("window", win)
	vm.Set("document", doc)
	vm.Set("self", win)

	vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return vm.ToValue(0)
		}
		s.nextTimerID++
		s.timerQueue = append(s.timerQueue, queuedTimer{timerID: s.nextTimerID, fn: fn})
		return vm.ToValue(s.nextTimerID)
	})
	vm.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
		want := call.Argument(0).ToInteger()
		for i, t := range s.timerQueue {
			if t.timerID == want {
				s.timerQueue = append(s.timerQueue[:i], s.timerQueue[i+1:]...)
				break
			}
		}
		return goja.Undefined()
	})
	// Intervals never fire headlessly; one validation pass has no use for
	// a repeating schedule and an unbounded one would never drain.
	vm.Set("setInterval", func(call goja.FunctionCall) goja.Value { return vm.ToValue(0) })
	vm.Set("clearInterval", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })

	navigator := vm.NewObject()
	navigator.Set("userAgent", "gamehost-headless")
	vm.Set("navigator", navigator)
	vm.Set("alert", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })

	return nil
}

func (s *Headless) listenerAdder(reg map[string][]goja.Callable) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		if fn, ok := goja.AssertFunction(call.Argument(1)); ok {
			reg[name] = append(reg[name], fn)
		}
		return goja.Undefined()
	}
}

func (s *Headless) styledElement() *goja.Object {
	el := s.vm.NewObject()
	el.Set("style", s.vm.NewObject())
	return el
}

func (s *Headless) dispatch(fns []goja.Callable) {
	event := s.vm.NewObject()
	event.Set("preventDefault", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	for _, fn := range fns {
		if _, err := fn(goja.Undefined(), s.vm.ToValue(event)); err != nil {
			s.appendConsole("error", err.Error())
		}
	}
}

// drainTimers runs queued timer callbacks, including ones they schedule,
// up to the drain bound. Delays are collapsed; headless validation cares
// about what eventually runs, not when.
func (s *Headless) drainTimers() {
	for i := 0; i < maxTimerDrain && len(s.timerQueue) > 0; i++ {
		t := s.timerQueue[0]
		s.timerQueue = s.timerQueue[1:]
		if _, err := t.fn(goja.Undefined()); err != nil {
			s.appendConsole("error", err.Error())
		}
	}
	if len(s.timerQueue) > 0 {
		s.log.Debug("timer drain bound hit", zap.Int("remaining", len(s.timerQueue)))
		s.timerQueue = nil
	}
}

func (s *Headless) flushOutbox() {
	pending := s.outbox
	s.outbox = nil
	if s.binding == nil || s.binding.OnEnvelope == nil {
		return
	}
	for _, env := range pending {
		s.binding.OnEnvelope(env)
	}
}

func (s *Headless) emitError(err error) {
	if s.binding != nil && s.binding.OnError != nil {
		s.binding.OnError(err)
	}
}

func (s *Headless) appendConsole(level, msg string) {
	s.console = append(s.console, ConsoleEntry{Level: level, Message: msg})
}

// inlineScripts extracts the text of inline script elements in document
// order. External script references cannot be fetched headlessly and are
// skipped.
func inlineScripts(document string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return nil, err
	}
	var scripts []string
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		if _, external := sel.Attr("src"); external {
			return
		}
		if src := sel.Text(); strings.TrimSpace(src) != "" {
			scripts = append(scripts, src)
		}
	})
	return scripts, nil
}
