// Package capture records intercepted communication calls of one rank.
//
// A Session is opened by Init or InitThread, which record the first clock
// anchor. The interception layer then builds events with the constructors
// of package event, usually timing the real call with Measure, and hands
// them to Record. Finalize records the closing anchor, seals the buffer and
// flushes it through the configured writer.
//
//	s, err := capture.Init(capture.Config{Rank: rank, Size: size, Writer: writer, Barrier: barrier})
//	if err != nil {
//		return err
//	}
//	at := s.Measure(func() { send(buf, dest) })
//	s.Record(event.Send(s.Rank(), dest, uint32(len(buf)), comm, tag, at))
//	path, err := s.Finalize(ctx)
//
// Recording never performs I/O. Recording after Finalize panics.
package capture
