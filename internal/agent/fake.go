package agent

import "context"

// FakeClient is a test double that returns predefined responses.
//
// Usage:
//
//	fake := &agent.FakeClient{
//	    Responses: []agent.Response{
//	        {Content: "done", StopReason: "end_turn"},
//	    },
//	}
type FakeClient struct {
	// Responses is the queue of responses, consumed in order. When
	// exhausted, a default end_turn reply is returned.
	Responses []Response

	// Calls records the messages received by each Complete call.
	Calls [][]Message

	// Err is returned by every Complete call when set.
	Err error
}

var _ Client = (*FakeClient)(nil)

func (f *FakeClient) Complete(_ context.Context, _ string, msgs []Message, _ []ToolDef) (*Response, error) {
	recorded := make([]Message, len(msgs))
	copy(recorded, msgs)
	f.Calls = append(f.Calls, recorded)

	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.Responses) == 0 {
		return &Response{Content: "(no more responses)", StopReason: "end_turn"}, nil
	}
	resp := f.Responses[0]
	f.Responses = f.Responses[1:]
	return &resp, nil
}
