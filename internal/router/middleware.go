package router

import (
	"runtime/debug"
	"time"

	logx "pluginlister/pkg/logx"
)

// slowCommand is the run time above which a command is logged as slow.
// Commands run on the loop, so a slow one delays every other callback.
const slowCommand = 250 * time.Millisecond

// handler runs one parsed request on the loop.
type handler func(req *Request)

type middleware func(next handler) handler

func chain(h handler, mws ...middleware) handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// recoverPanic answers the player when a command panics, so a crash still
// produces exactly one reply.
func recoverPanic(next handler) handler {
	return func(req *Request) {
		defer func() {
			if v := recover(); v != nil {
				req.Logger.Error("command panicked",
					logx.Any("panic", v),
					logx.String("stack", string(debug.Stack())),
				)
				req.Player.Reply("command failed")
			}
		}()
		next(req)
	}
}

// timeCommand logs how long the request waited in the loop queue and how
// long the command ran.
func timeCommand(next handler) handler {
	return func(req *Request) {
		start := time.Now()
		next(req)
		run := time.Since(start)

		fields := []logx.Field{
			logx.Duration("queued", start.Sub(req.Received)),
			logx.Duration("run", run),
		}
		if run >= slowCommand {
			req.Logger.Warn("slow command", fields...)
			return
		}
		req.Logger.Debug("command done", fields...)
	}
}
