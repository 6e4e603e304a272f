// Package providers registers every built-in provider with video_relay.DefaultProviderRegistry when imported.
package providers

import (
	_ "github.com/alanbriolat/video-relay/provider/page"
	_ "github.com/alanbriolat/video-relay/provider/raw"
	_ "github.com/alanbriolat/video-relay/provider/youtube"
)
