// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

// CONNACK packet reason codes
// (https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901079)
const (
	connackMalformedPacket             byte = 0x81
	connackProtocolError               byte = 0x82
	connackImplementationSpecificError byte = 0x83
	connackUnsupportedProtocolVersion  byte = 0x84
	connackClientIdentifierNotValid    byte = 0x85
	connackBadUserNameOrPassword       byte = 0x86
	connackNotAuthorized               byte = 0x87
	connackBanned                      byte = 0x8A
	connackBadAuthenticationMethod     byte = 0x8C
	connackUseAnotherServer            byte = 0x9C
	connackServerMoved                 byte = 0x9D
)

// DISCONNECT packet reason codes
// (https://docs.oasis-open.org/mqtt/mqtt/v5.0/os/mqtt-v5.0-os.html#_Toc3901208)
const (
	disconnectNormalDisconnection     byte = 0x00
	disconnectMalformedPacket         byte = 0x81
	disconnectProtocolError           byte = 0x82
	disconnectNotAuthorized           byte = 0x87
	disconnectSessionTakenOver        byte = 0x8E
	disconnectTopicFilterInvalid      byte = 0x8F
	disconnectTopicNameInvalid        byte = 0x90
	disconnectPacketTooLarge          byte = 0x95
	disconnectPayloadFormatInvalid    byte = 0x99
	disconnectRetainNotSupported      byte = 0x9A
	disconnectQoSNotSupported         byte = 0x9B
	disconnectServerMoved             byte = 0x9D
	disconnectWildcardSubsUnsupported byte = 0xA2
)

// Defaults applied by NewSessionClient.
const (
	defaultKeepAlive      uint16 = 60
	defaultReceiveMaximum uint16 = 0xFFFF
	clientIDPrefix               = "CleanEnv-"
)
