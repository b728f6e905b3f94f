// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "errors"

var fatalConnackReasonCodes = map[byte]struct{}{
	connackMalformedPacket:             {},
	connackProtocolError:               {},
	connackImplementationSpecificError: {},
	connackUnsupportedProtocolVersion:  {},
	connackClientIdentifierNotValid:    {},
	connackBadUserNameOrPassword:       {},
	connackNotAuthorized:               {},
	connackBanned:                      {},
	connackBadAuthenticationMethod:     {},
	connackUseAnotherServer:            {},
	connackServerMoved:                 {},
}

// isFatalConnackReasonCode checks if the reason code in the CONNACK received
// from the server is fatal.
func isFatalConnackReasonCode(reasonCode byte) bool {
	_, ok := fatalConnackReasonCodes[reasonCode]
	return ok
}

var fatalDisconnectReasonCodes = map[byte]struct{}{
	disconnectMalformedPacket:         {},
	disconnectProtocolError:           {},
	disconnectNotAuthorized:           {},
	disconnectSessionTakenOver:        {},
	disconnectTopicFilterInvalid:      {},
	disconnectTopicNameInvalid:        {},
	disconnectPacketTooLarge:          {},
	disconnectPayloadFormatInvalid:    {},
	disconnectRetainNotSupported:      {},
	disconnectQoSNotSupported:         {},
	disconnectServerMoved:             {},
	disconnectWildcardSubsUnsupported: {},
}

// isFatalDisconnectReasonCode checks if the reason code in the DISCONNECT
// received from the server is fatal.
func isFatalDisconnectReasonCode(reasonCode byte) bool {
	_, ok := fatalDisconnectReasonCodes[reasonCode]
	return ok
}

// isFatal reports whether err should stop the client instead of triggering a
// reconnect.
func isFatal(err error) bool {
	var connack *FatalConnackError
	var disconnect *FatalDisconnectError
	var argument *InvalidArgumentError
	return errors.As(err, &connack) ||
		errors.As(err, &disconnect) ||
		errors.As(err, &argument)
}
