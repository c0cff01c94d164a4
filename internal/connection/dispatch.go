package connection

import (
	"context"
	"log/slog"

	"github.com/librespot-org/librespot-sub003/internal/coreerr"
)

// Handlers groups the callbacks the dispatch loop routes frames to. Each
// field may be left nil if the owning session has no interest in that
// command family (e.g. during early bring-up); nil handlers are a no-op.
type Handlers struct {
	Mercury func(cmd Command, payload []byte)
	AesKey  func(cmd Command, payload []byte)
	Channel func(cmd Command, payload []byte)
	OnDisconnect func(err error)
}

// Dispatch runs the single-task receive loop: it reads frames forever,
// replying to Ping with Pong and routing everything else per spec.md §4.1's
// command table, until ctx is cancelled or the connection errors.
func Dispatch(ctx context.Context, codec *Codec, h Handlers, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "dispatch")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cmd, payload, err := codec.ReadFrame()
		if err != nil {
			if h.OnDisconnect != nil {
				h.OnDisconnect(coreerr.Aborted(err))
			}
			return
		}

		switch cmd {
		case CmdPing:
			if err := codec.WriteFrame(CmdPong, payload); err != nil {
				if h.OnDisconnect != nil {
					h.OnDisconnect(coreerr.Aborted(err))
				}
				return
			}
		case CmdCountryCode, CmdProductInfo, CmdLegacyWelcome, CmdLicenseVersion,
			CmdUnknown0x0f, CmdUnknown0x10, CmdUnknownAllZeros, CmdUnknown0x4f,
			CmdPreferredLocale, CmdTrackEndedTime:
			log.Debug("stashed or ignored frame", "command", cmd)
		case CmdMercuryReq, CmdMercurySub, CmdMercuryUnsub, CmdMercuryEvent:
			if h.Mercury != nil {
				h.Mercury(cmd, payload)
			}
		case CmdAesKey, CmdAesKeyError:
			if h.AesKey != nil {
				h.AesKey(cmd, payload)
			}
		case CmdChannelError, CmdStreamChunk, CmdStreamChunkRes:
			if h.Channel != nil {
				h.Channel(cmd, payload)
			}
		case CmdPongAck:
			// discard
		default:
			log.Debug("unknown command, ignoring", "command", cmd)
		}
	}
}
