package rtmp

import (
	"github.com/torresjeff/rtmp-ingest/amf/amf0"
	"github.com/torresjeff/rtmp-ingest/config"
)

// Builders for the messages the server sends. Protocol control messages always travel on
// message stream 0.

func generateWindowAckSizeMessage(size uint32) (*Message, error) {
	return newMessage(&WindowAckSize{Size: size}, 0, 0)
}

func generateSetPeerBandwidthMessage(size uint32, limitType LimitType) (*Message, error) {
	return newMessage(&PeerBandwidth{Size: size, LimitType: limitType}, 0, 0)
}

func generateSetChunkSizeMessage(size uint32) (*Message, error) {
	return newMessage(&ChunkSize{Size: size}, 0, 0)
}

func generateAckMessage(sequenceNumber uint32) (*Message, error) {
	return newMessage(&Ack{SequenceNumber: sequenceNumber}, 0, 0)
}

func generateStreamBeginMessage(streamID uint32) (*Message, error) {
	return newMessage(&UserControl{Event: EventStreamBegin, StreamID: streamID}, 0, 0)
}

func generatePingResponseMessage(timestamp uint32) (*Message, error) {
	return newMessage(&UserControl{Event: EventPingResponse, Timestamp: timestamp}, 0, 0)
}

// generateConnectResultMessage answers connect with NetConnection.Connect.Success.
func generateConnectResultMessage(transactionID float64) (*Message, error) {
	result := &ConnectResult{
		Properties: amf0.Object{
			{Key: "fmsVer", Value: config.FlashMediaServerVersion},
			{Key: "capabilities", Value: float64(config.Capabilities)},
		},
		Information: amf0.Object{
			{Key: "level", Value: LevelStatus},
			{Key: "code", Value: NetConnectionConnectSuccess},
			{Key: "description", Value: "Connection succeeded."},
			{Key: "objectEncoding", Value: float64(0)},
		},
	}
	return newMessage(&Command{TransactionID: transactionID, Type: result}, 0, 0)
}

func generateCreateStreamResultMessage(transactionID float64, streamID uint32) (*Message, error) {
	return newMessage(&Command{TransactionID: transactionID, Type: &CreateStreamResult{StreamID: float64(streamID)}}, 0, 0)
}

// generateUndefinedResultMessage is the _result(txn, null, undefined) sent for releaseStream and FCPublish.
func generateUndefinedResultMessage(transactionID float64) (*Message, error) {
	result := &Result{Name: "_result", Args: []interface{}{amf0.Undefined{}}}
	return newMessage(&Command{TransactionID: transactionID, Type: result}, 0, 0)
}

func generateStatusMessage(streamID uint32, transactionID float64, status *OnStatus) (*Message, error) {
	return newMessage(&Command{TransactionID: transactionID, Type: status}, streamID, 0)
}
