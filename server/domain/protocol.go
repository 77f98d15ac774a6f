package domain

import (
	"encoding/binary"
	"errors"
	"math"
)

// バイトオーダー: リトルエンディアン
var byteOrder = binary.LittleEndian

const (
	ProtocolVersion   = 1
	HeaderSize        = 11
	PayloadHeaderSize = 2
	PositionSize      = 12
)

// Header はメッセージヘッダー (11バイト)
//
//	version        u8  (1)
//	participantID  u64 (8)  - 送信者
//	length         u16 (2)  - ペイロードヘッダーを含むペイロード長
type Header struct {
	Version       uint8
	ParticipantID ParticipantID
	Length        uint16
}

// DataType はメッセージの種別
type DataType uint8

const (
	DataTypeControl DataType = 1
	DataTypeLobby   DataType = 2
	DataTypePlayer  DataType = 3
	DataTypeScore   DataType = 4
	DataTypeTarget  DataType = 5
)

// ControlSubType はcontrolメッセージのサブタイプ
type ControlSubType uint8

const (
	ControlSubTypeAssign ControlSubType = 1
	ControlSubTypePing   ControlSubType = 2
	ControlSubTypePong   ControlSubType = 3
	ControlSubTypeLeave  ControlSubType = 4
)

// LobbySubType はlobbyメッセージのサブタイプ
type LobbySubType uint8

const (
	LobbySubTypeVisibility   LobbySubType = 1
	LobbySubTypeRoster       LobbySubType = 2
	LobbySubTypeStartRequest LobbySubType = 3
)

// PlayerSubType はplayerメッセージのサブタイプ
type PlayerSubType uint8

const (
	PlayerSubTypeSpawn   PlayerSubType = 1
	PlayerSubTypeDespawn PlayerSubType = 2
)

// ScoreSubType はscoreメッセージのサブタイプ
type ScoreSubType uint8

const (
	ScoreSubTypeUpdate           ScoreSubType = 1
	ScoreSubTypeIncrementRequest ScoreSubType = 2
)

// TargetSubType はtargetメッセージのサブタイプ
type TargetSubType uint8

const (
	TargetSubTypeSpawn            TargetSubType = 1
	TargetSubTypeDespawn          TargetSubType = 2
	TargetSubTypeDestroyRequest   TargetSubType = 3
	TargetSubTypeDestroyBroadcast TargetSubType = 4
	TargetSubTypeSyncRequest      TargetSubType = 5
)

// PayloadHeader はペイロードヘッダー (2バイト)
//
//	datatype  u8 (1)
//	subtype   u8 (1)
type PayloadHeader struct {
	DataType DataType
	SubType  uint8
}

var (
	ErrInvalidHeaderSize  = errors.New("invalid header size")
	ErrInvalidPayloadSize = errors.New("invalid payload size")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrLengthMismatch     = errors.New("header length does not match payload")
	ErrPayloadTooLarge    = errors.New("payload exceeds maximum frame length")
	ErrNonFinitePosition  = errors.New("position has non-finite component")
	ErrRosterTooLarge     = errors.New("roster exceeds maximum participant count")
)

const (
	maxPayloadLength      = math.MaxUint16 - PayloadHeaderSize
	maxRosterParticipants = (maxPayloadLength - 2) / 8
)

// ParseHeader はバイト列からHeaderをパースする
func ParseHeader(data []byte) (*Header, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidHeaderSize
	}
	return &Header{
		Version:       data[0],
		ParticipantID: ParticipantID(byteOrder.Uint64(data[1:9])),
		Length:        byteOrder.Uint16(data[9:11]),
	}, nil
}

// Encode はHeaderをバイト列にエンコードする
func (h *Header) Encode() []byte {
	data := make([]byte, HeaderSize)
	data[0] = h.Version
	byteOrder.PutUint64(data[1:9], uint64(h.ParticipantID))
	byteOrder.PutUint16(data[9:11], h.Length)
	return data
}

// ParsePayloadHeader はバイト列からPayloadHeaderをパースする
func ParsePayloadHeader(data []byte) (*PayloadHeader, error) {
	if len(data) < PayloadHeaderSize {
		return nil, ErrInvalidPayloadSize
	}
	return &PayloadHeader{
		DataType: DataType(data[0]),
		SubType:  data[1],
	}, nil
}

// Encode はPayloadHeaderをバイト列にエンコードする
func (p *PayloadHeader) Encode() []byte {
	data := make([]byte, PayloadHeaderSize)
	data[0] = byte(p.DataType)
	data[1] = p.SubType
	return data
}

// Message はパース済みの1フレームです。
type Message struct {
	Header  Header
	Kind    PayloadHeader
	Payload []byte
}

// Is はメッセージの種別とサブタイプが一致するかを返す
func (m *Message) Is(dataType DataType, subType uint8) bool {
	return m.Kind.DataType == dataType && m.Kind.SubType == subType
}

// ParseMessage はフレーム全体を検証してパースする
func ParseMessage(data []byte) (*Message, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	if header.Version != ProtocolVersion {
		return nil, ErrUnsupportedVersion
	}
	body := data[HeaderSize:]
	if int(header.Length) != len(body) {
		return nil, ErrLengthMismatch
	}
	kind, err := ParsePayloadHeader(body)
	if err != nil {
		return nil, err
	}
	return &Message{
		Header:  *header,
		Kind:    *kind,
		Payload: body[PayloadHeaderSize:],
	}, nil
}

// EncodeMessage はヘッダーとペイロードヘッダーを付与したフレームを組み立てる
func EncodeMessage(sender ParticipantID, dataType DataType, subType uint8, payload []byte) ([]byte, error) {
	if len(payload) > maxPayloadLength {
		return nil, ErrPayloadTooLarge
	}
	length := PayloadHeaderSize + len(payload)
	header := Header{
		Version:       ProtocolVersion,
		ParticipantID: sender,
		Length:        uint16(length),
	}
	kind := PayloadHeader{DataType: dataType, SubType: subType}

	data := make([]byte, 0, HeaderSize+length)
	data = append(data, header.Encode()...)
	data = append(data, kind.Encode()...)
	data = append(data, payload...)
	return data, nil
}

// encodeFixed は固定長ペイロード用。サイズ超過は起こり得ない。
func encodeFixed(sender ParticipantID, dataType DataType, subType uint8, payload []byte) []byte {
	data, _ := EncodeMessage(sender, dataType, subType, payload)
	return data
}

// Position は3次元座標 (12バイト)
//
//	x  f32 (4)
//	y  f32 (4)
//	z  f32 (4)
type Position struct {
	X float32
	Y float32
	Z float32
}

// IsFinite は全成分が有限値かを返す
func (p Position) IsFinite() bool {
	for _, v := range [...]float32{p.X, p.Y, p.Z} {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// ParsePosition はバイト列からPositionをパースする
func ParsePosition(data []byte) (Position, error) {
	if len(data) < PositionSize {
		return Position{}, ErrInvalidPayloadSize
	}
	p := Position{
		X: math.Float32frombits(byteOrder.Uint32(data[0:4])),
		Y: math.Float32frombits(byteOrder.Uint32(data[4:8])),
		Z: math.Float32frombits(byteOrder.Uint32(data[8:12])),
	}
	if !p.IsFinite() {
		return Position{}, ErrNonFinitePosition
	}
	return p, nil
}

// Encode はPositionをバイト列にエンコードする
func (p Position) Encode() []byte {
	data := make([]byte, PositionSize)
	byteOrder.PutUint32(data[0:4], math.Float32bits(p.X))
	byteOrder.PutUint32(data[4:8], math.Float32bits(p.Y))
	byteOrder.PutUint32(data[8:12], math.Float32bits(p.Z))
	return data
}

// ---- control ----

// EncodeAssignMessage は接続確立時に参加者IDを通知するメッセージ
func EncodeAssignMessage(id ParticipantID) []byte {
	payload := make([]byte, 8)
	byteOrder.PutUint64(payload, uint64(id))
	return encodeFixed(ServerParticipantID, DataTypeControl, uint8(ControlSubTypeAssign), payload)
}

// ParseAssignPayload はAssignペイロードから参加者IDを取り出す
func ParseAssignPayload(data []byte) (ParticipantID, error) {
	if len(data) < 8 {
		return 0, ErrInvalidPayloadSize
	}
	return ParticipantID(byteOrder.Uint64(data[0:8])), nil
}

func EncodePingMessage(sender ParticipantID) []byte {
	return encodeFixed(sender, DataTypeControl, uint8(ControlSubTypePing), nil)
}

func EncodePongMessage(sender ParticipantID) []byte {
	return encodeFixed(sender, DataTypeControl, uint8(ControlSubTypePong), nil)
}

func EncodeLeaveMessage(sender ParticipantID) []byte {
	return encodeFixed(sender, DataTypeControl, uint8(ControlSubTypeLeave), nil)
}

// ---- lobby ----

// LobbyVisibilityPayload (9バイト)
//
//	participantID  u64 (8)
//	visible        u8  (1)
type LobbyVisibilityPayload struct {
	ParticipantID ParticipantID
	Visible       bool
}

func ParseLobbyVisibilityPayload(data []byte) (*LobbyVisibilityPayload, error) {
	if len(data) < 9 {
		return nil, ErrInvalidPayloadSize
	}
	return &LobbyVisibilityPayload{
		ParticipantID: ParticipantID(byteOrder.Uint64(data[0:8])),
		Visible:       data[8] != 0,
	}, nil
}

func EncodeLobbyVisibilityMessage(sender, participant ParticipantID, visible bool) []byte {
	payload := make([]byte, 9)
	byteOrder.PutUint64(payload[0:8], uint64(participant))
	if visible {
		payload[8] = 1
	}
	return encodeFixed(sender, DataTypeLobby, uint8(LobbySubTypeVisibility), payload)
}

// ParseLobbyRosterPayload は参加者一覧をパースする
//
//	count         u16      (2)
//	participants  u64*count
func ParseLobbyRosterPayload(data []byte) ([]ParticipantID, error) {
	if len(data) < 2 {
		return nil, ErrInvalidPayloadSize
	}
	count := int(byteOrder.Uint16(data[0:2]))
	if len(data) < 2+count*8 {
		return nil, ErrInvalidPayloadSize
	}
	ids := make([]ParticipantID, count)
	for i := range ids {
		off := 2 + i*8
		ids[i] = ParticipantID(byteOrder.Uint64(data[off : off+8]))
	}
	return ids, nil
}

func EncodeLobbyRosterMessage(sender ParticipantID, ids []ParticipantID) ([]byte, error) {
	if len(ids) > maxRosterParticipants {
		return nil, ErrRosterTooLarge
	}
	payload := make([]byte, 2+len(ids)*8)
	byteOrder.PutUint16(payload[0:2], uint16(len(ids)))
	for i, id := range ids {
		off := 2 + i*8
		byteOrder.PutUint64(payload[off:off+8], uint64(id))
	}
	return EncodeMessage(sender, DataTypeLobby, uint8(LobbySubTypeRoster), payload)
}

func EncodeGameStartRequestMessage(sender ParticipantID) []byte {
	return encodeFixed(sender, DataTypeLobby, uint8(LobbySubTypeStartRequest), nil)
}

// ---- player ----

// PlayerSpawnPayload (20バイト)
//
//	owner     u64 (8)
//	position  Position (12)
type PlayerSpawnPayload struct {
	Owner    ParticipantID
	Position Position
}

func ParsePlayerSpawnPayload(data []byte) (*PlayerSpawnPayload, error) {
	if len(data) < 8+PositionSize {
		return nil, ErrInvalidPayloadSize
	}
	pos, err := ParsePosition(data[8:])
	if err != nil {
		return nil, err
	}
	return &PlayerSpawnPayload{
		Owner:    ParticipantID(byteOrder.Uint64(data[0:8])),
		Position: pos,
	}, nil
}

func EncodePlayerSpawnMessage(sender, owner ParticipantID, pos Position) []byte {
	payload := make([]byte, 0, 8+PositionSize)
	payload = byteOrder.AppendUint64(payload, uint64(owner))
	payload = append(payload, pos.Encode()...)
	return encodeFixed(sender, DataTypePlayer, uint8(PlayerSubTypeSpawn), payload)
}

func ParsePlayerDespawnPayload(data []byte) (ParticipantID, error) {
	if len(data) < 8 {
		return 0, ErrInvalidPayloadSize
	}
	return ParticipantID(byteOrder.Uint64(data[0:8])), nil
}

func EncodePlayerDespawnMessage(sender, owner ParticipantID) []byte {
	return encodeFixed(sender, DataTypePlayer, uint8(PlayerSubTypeDespawn), byteOrder.AppendUint64(nil, uint64(owner)))
}

// ---- score ----

// ParseScorePayload はスコア(またはスコア増分)をパースする (i64, 8バイト)
func ParseScorePayload(data []byte) (int64, error) {
	if len(data) < 8 {
		return 0, ErrInvalidPayloadSize
	}
	return int64(byteOrder.Uint64(data[0:8])), nil
}

func EncodeScoreUpdateMessage(sender ParticipantID, score int64) []byte {
	return encodeFixed(sender, DataTypeScore, uint8(ScoreSubTypeUpdate), byteOrder.AppendUint64(nil, uint64(score)))
}

func EncodeScoreIncrementRequestMessage(sender ParticipantID, delta int64) []byte {
	return encodeFixed(sender, DataTypeScore, uint8(ScoreSubTypeIncrementRequest), byteOrder.AppendUint64(nil, uint64(delta)))
}

// ---- target ----

// TargetSpawnPayload (15バイト)
//
//	slot       u16 (2)
//	typeIndex  u8  (1)
//	position   Position (12)
type TargetSpawnPayload struct {
	Slot      uint16
	TypeIndex uint8
	Position  Position
}

func ParseTargetSpawnPayload(data []byte) (*TargetSpawnPayload, error) {
	if len(data) < 3+PositionSize {
		return nil, ErrInvalidPayloadSize
	}
	pos, err := ParsePosition(data[3:])
	if err != nil {
		return nil, err
	}
	return &TargetSpawnPayload{
		Slot:      byteOrder.Uint16(data[0:2]),
		TypeIndex: data[2],
		Position:  pos,
	}, nil
}

func EncodeTargetSpawnMessage(sender ParticipantID, slot uint16, typeIndex uint8, pos Position) []byte {
	payload := make([]byte, 0, 3+PositionSize)
	payload = byteOrder.AppendUint16(payload, slot)
	payload = append(payload, typeIndex)
	payload = append(payload, pos.Encode()...)
	return encodeFixed(sender, DataTypeTarget, uint8(TargetSubTypeSpawn), payload)
}

// ParseTargetSlotPayload はスロット番号のみのペイロードをパースする (u16, 2バイト)
func ParseTargetSlotPayload(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, ErrInvalidPayloadSize
	}
	return byteOrder.Uint16(data[0:2]), nil
}

func encodeTargetSlot(sender ParticipantID, subType TargetSubType, slot uint16) []byte {
	return encodeFixed(sender, DataTypeTarget, uint8(subType), byteOrder.AppendUint16(nil, slot))
}

func EncodeTargetDespawnMessage(sender ParticipantID, slot uint16) []byte {
	return encodeTargetSlot(sender, TargetSubTypeDespawn, slot)
}

func EncodeTargetDestroyRequestMessage(sender ParticipantID, slot uint16) []byte {
	return encodeTargetSlot(sender, TargetSubTypeDestroyRequest, slot)
}

func EncodeTargetDestroyBroadcastMessage(sender ParticipantID, slot uint16) []byte {
	return encodeTargetSlot(sender, TargetSubTypeDestroyBroadcast, slot)
}

func EncodeSyncStateRequestMessage(sender ParticipantID) []byte {
	return encodeFixed(sender, DataTypeTarget, uint8(TargetSubTypeSyncRequest), nil)
}
