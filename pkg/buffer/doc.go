// Package buffer provides a bounded, blocking FIFO used to hand streamed
// completion chunks from a network goroutine to their consumer.
//
// BlockBuffer blocks producers when full and consumers when empty. Producers
// finish with CloseWrite (consumers drain what is left, then see
// ErrIteratorDone) or abort with CloseWithError (both sides fail at once).
//
//	buf := buffer.BlockN[string](32)
//	go func() {
//	    defer buf.CloseWrite()
//	    buf.Add("hello")
//	}()
//	for {
//	    s, err := buf.Next()
//	    if errors.Is(err, buffer.ErrIteratorDone) {
//	        break
//	    }
//	}
package buffer
