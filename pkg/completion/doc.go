// Package completion is the text-completion service used to generate
// document continuations.
//
// A Service offers two calls for the same Request: Stream, which yields the
// continuation incrementally, and Complete, which returns it in one piece.
// Gemini and OpenAI implement Service; Mux routes by model name.
//
// Requests are built from the document text, the user's Settings and a
// generation Mode by BuildRequest:
//
//	req := completion.BuildRequest(text, completion.DefaultSettings(), completion.ModeLine)
//	st, err := svc.Stream(ctx, req.WithTemperature(0.7))
//	for {
//	    chunk, err := st.Next()
//	    if errors.Is(err, completion.ErrDone) {
//	        break
//	    }
//	    ...
//	}
//
// Provider and transport failures are reported as *ServiceError, whose
// message is meant to be shown to the user verbatim.
package completion
