// Copyright (C) 2024 Michael J. Fromberger. All Rights Reserved.

package transport

import (
	"context"
	"errors"
	"net"

	"github.com/creachadair/taskgroup"
	"github.com/tensorlane/tensorlane"
)

// An Accepter produces successive inbound Connections, the way a
// net.Listener produces successive net.Conns. It generalises the teacher's
// peers.Accepter to this package's Connection type.
type Accepter interface {
	Accept(ctx context.Context) (tensorlane.Connection, error)
}

// NetAccepter adapts a net.Listener into an Accepter, wrapping each
// accepted net.Conn with IO. Closing ctx closes the listener from a
// watcher goroutine, mirroring the teacher's peers.NetAccepter.
func NetAccepter(lst net.Listener) Accepter { return netAccepter{lst} }

type netAccepter struct{ lst net.Listener }

func (n netAccepter) Accept(ctx context.Context) (tensorlane.Connection, error) {
	// A net.Listener does not obey a context, so simulate it by closing the
	// listener if ctx ends. The ok channel lets the watcher clean up when we
	// return before ctx ends.
	ok := make(chan struct{})
	defer close(ok)
	taskgroup.Go(func() error {
		select {
		case <-ctx.Done():
			n.lst.Close()
		case <-ok:
		}
		return nil
	})

	conn, err := n.lst.Accept()
	if err != nil {
		return nil, err
	}
	return IO(conn, conn), nil
}

// Loop accepts connections from acc until ctx is cancelled or Accept
// reports a permanent error, invoking newConn for each one on its own
// goroutine. It mirrors the teacher's peers.Loop, generalised from
// constructing a *chirp.Peer per connection to constructing whatever the
// caller's newConn callback builds (a channel, a context-bound handler,
// etc) per tensorlane.Connection.
func Loop(ctx context.Context, acc Accepter, newConn func(tensorlane.Connection)) error {
	g := taskgroup.New(nil)
	for {
		conn, err := acc.Accept(ctx)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				err = nil
			}
			g.Wait()
			return err
		}
		g.Go(func() error {
			newConn(conn)
			return nil
		})
	}
}
