package rtmp

// Levels of an onStatus info object.
const (
	LevelStatus  = "status"
	LevelWarning = "warning"
	LevelError   = "error"
)

// Info codes carried by onStatus and _result info objects.
const (
	NetConnectionCallFailed               = "NetConnection.Call.Failed"
	NetConnectionConnectAppShutdown       = "NetConnection.Connect.AppShutdown"
	NetConnectionConnectClosed            = "NetConnection.Connect.Closed"
	NetConnectionConnectFailed            = "NetConnection.Connect.Failed"
	NetConnectionConnectRejected          = "NetConnection.Connect.Rejected"
	NetConnectionConnectSuccess           = "NetConnection.Connect.Success"
	NetConnectionConnectReconnectRequest  = "NetConnection.Connect.ReconnectRequest"
	NetConnectionProxyNotResponding       = "NetConnection.Proxy.NotResponding"
	NetStreamPublishStart                 = "NetStream.Publish.Start"
	NetStreamPublishBadName               = "NetStream.Publish.BadName"
	NetStreamUnpublishSuccess             = "NetStream.Unpublish.Success"
	NetStreamPlayFailed                   = "NetStream.Play.Failed"
	NetStreamFailed                       = "NetStream.Failed"
	// Misspelled on the wire by the servers clients were tested against; kept as is.
	NetStreamDeleteStreamSuccess = "NetStream.DeleteStream.Suceess"
)

// Non-standard status events sent around FCPublish and FCUnpublish.
const (
	onFCPublish   = "onFCPublish"
	onFCUnpublish = "onFCUnpublish"
)
