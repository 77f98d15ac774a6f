package domain

import "strconv"

// ParticipantID はセッション内で接続ごとに割り当てられる識別子です。
// 0 はホスト/サーバー自身に予約されています。
type ParticipantID uint64

const ServerParticipantID ParticipantID = 0

func (id ParticipantID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

func (id ParticipantID) IsServer() bool {
	return id == ServerParticipantID
}
