//go:build !linux

package capture

import "github.com/Skinpack/JAProxy/internal/result"

func openAFPacket(Options) result.Result[Handle] {
	return result.Fail[Handle]("AF_PACKET capture is only available on linux")
}
