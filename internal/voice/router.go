package voice

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/onchain-voice-lab/internal/agent"
	"github.com/onchain-voice-lab/internal/logging"
	"github.com/onchain-voice-lab/internal/realtime"
)

const (
	agentSuccessFormat = "I've processed your blockchain request. Here's what happened: %s\nWould you like me to explain anything about what was done?"
	agentErrorFormat   = "I encountered an error while processing your blockchain request: %s\nWould you like to try again?"
)

// Agent runs a request through the tool-calling agent.
type Agent interface {
	Run(ctx context.Context, threadID, input string, onStep func(agent.Step)) (string, error)
}

type RouterConfig struct {
	State      *State
	Agent      Agent
	ThreadID   string
	Classifier *Classifier
	Log        *ContextLog
	Tasks      *Tasks
	Display    Display
}

// Router sends blockchain requests to the agent and leaves everything else
// to the realtime session.
type Router struct {
	state      *State
	agent      Agent
	threadID   string
	classifier *Classifier
	log        *ContextLog
	tasks      *Tasks
	display    Display
}

func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		state:      cfg.State,
		agent:      cfg.Agent,
		threadID:   cfg.ThreadID,
		classifier: cfg.Classifier,
		log:        cfg.Log,
		tasks:      cfg.Tasks,
		display:    cfg.Display,
	}
	if r.display == nil {
		r.display = nopDisplay{}
	}
	if r.log == nil {
		r.log = NewContextLog()
	}
	if r.classifier == nil {
		r.classifier = NewClassifier(nil)
	}
	return r
}

// Route records a finalised transcript and dispatches it. It reports
// whether the transcript was handed to the agent.
func (r *Router) Route(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	r.log.Append("user", text, OriginVoice)
	r.display.Write("Transcribed Text: " + text)

	keyword, ok := r.classifier.Match(text)
	if !ok || r.agent == nil || r.tasks == nil {
		r.display.Write("Assistant Response:")
		return false
	}
	requestID := uuid.NewString()
	logging.Infow("blockchain request detected", append(logging.RequestFields(requestID, r.threadID), "keyword", keyword)...)
	r.display.Write("Detected blockchain request, using agent...")
	accepted := r.tasks.Go("agent-request", func(ctx context.Context) {
		r.handleDomainRequest(ctx, requestID, text)
	})
	if !accepted {
		r.display.Write("Shutting down; blockchain request not sent.")
	}
	return accepted
}

func (r *Router) handleDomainRequest(ctx context.Context, requestID, text string) {
	ctx = logging.WithFields(ctx, logging.RequestFields(requestID, r.threadID)...)

	response, err := r.agent.Run(ctx, r.threadID, text, func(step agent.Step) {
		switch step.Kind {
		case agent.StepTools:
			r.display.Write(fmt.Sprintf("Using Tool: %s", step.Tool))
			if step.Content != "" {
				r.display.Write(step.Content)
			}
		default:
			if step.Content != "" {
				r.display.Write(step.Content)
			}
		}
	})
	if err != nil {
		msg := fmt.Sprintf(agentErrorFormat, err)
		r.log.Append("assistant", msg, OriginAgentError)
		logging.ErrorwCtx(ctx, "agent request failed", "error", err)
		r.display.Write("Error processing blockchain request: " + err.Error())
		r.reply(ctx, msg)
		return
	}

	response = strings.TrimSpace(response)
	r.log.Append("assistant", response, OriginAgent)
	logging.InfowCtx(ctx, "agent request completed", "chars", len(response))
	r.reply(ctx, fmt.Sprintf(agentSuccessFormat, response))
}

// reply posts text into the realtime conversation as an assistant item,
// waiting for a connection if there is none.
func (r *Router) reply(ctx context.Context, text string) {
	stream, err := r.state.Stream(ctx)
	if err != nil {
		logging.WarnwCtx(ctx, "no realtime connection for agent reply", "error", err)
		return
	}
	if err := stream.Send(realtime.AssistantText(text)); err != nil {
		logging.WarnwCtx(ctx, "failed to send agent reply", "error", err)
	}
}
