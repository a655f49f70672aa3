package sqlite

import "time"

// Registration is a (scope, contract) authorization. Scope is the zero hash for ALL.
type Registration struct {
	ID        uint   `gorm:"primaryKey"`
	Scope     string `gorm:"uniqueIndex:idx_registration;size:66;not null"`
	Contract  string `gorm:"uniqueIndex:idx_registration;size:42;not null"`
	CreatedAt time.Time
}

type RoleMember struct {
	ID      uint   `gorm:"primaryKey"`
	Role    string `gorm:"uniqueIndex:idx_role_member;not null"`
	Account string `gorm:"uniqueIndex:idx_role_member;size:42;not null"`
}

// ChannelRecord holds message counters for a chain pair.
type ChannelRecord struct {
	ID          uint   `gorm:"primaryKey"`
	LocalChain  string `gorm:"uniqueIndex:idx_channel_pair;size:66;not null"`
	RemoteChain string `gorm:"uniqueIndex:idx_channel_pair;size:66;not null"`
	Incoming    uint64
	Outgoing    uint64
	Watermark   uint64
	UpdatedAt   time.Time
}

// OutgoingMessage is one queued message; rows are append-only until the channel is removed.
type OutgoingMessage struct {
	ID          uint   `gorm:"primaryKey"`
	LocalChain  string `gorm:"uniqueIndex:idx_outgoing_counter;size:66;not null"`
	RemoteChain string `gorm:"uniqueIndex:idx_outgoing_counter;size:66;not null"`
	Counter     uint64 `gorm:"uniqueIndex:idx_outgoing_counter"`
	Sender      string `gorm:"size:42"`
	Destination string `gorm:"size:42"`
	Data        []byte
}

type LinkRecord struct {
	ID                  uint   `gorm:"primaryKey"`
	LocalChain          string `gorm:"uniqueIndex:idx_link_pair;size:66;not null"`
	RemoteChain         string `gorm:"uniqueIndex:idx_link_pair;size:66;not null"`
	KilledBySchainOwner bool
	KilledByOperator    bool
	Counterparts        string // comma separated hex addresses
}

type ReceiptRecord struct {
	ID          string `gorm:"primaryKey;size:36"`
	LocalChain  string `gorm:"index:idx_receipt_pair;size:66;not null"`
	RemoteChain string `gorm:"index:idx_receipt_pair;size:66;not null"`
	Counter     uint64 `gorm:"index:idx_receipt_pair"`
	Destination string `gorm:"size:42"`
	Success     bool
	Reason      string
	Error       string `gorm:"type:text"`
	ProcessedAt time.Time
}

// BalanceRecord stores a uint256 as its decimal string.
type BalanceRecord struct {
	ID      uint   `gorm:"primaryKey"`
	Scope   string `gorm:"uniqueIndex:idx_balance;size:66;not null"`
	Account string `gorm:"uniqueIndex:idx_balance;size:42;not null"`
	Asset   string `gorm:"uniqueIndex:idx_balance;not null"`
	Amount  string `gorm:"not null;default:'0'"`
}

type UserRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Scope       string `gorm:"uniqueIndex:idx_user;size:66;not null"`
	Account     string `gorm:"uniqueIndex:idx_user;size:42;not null"`
	Active      bool
	LastMessage time.Time
}

type SettingRecord struct {
	Name  string `gorm:"primaryKey"`
	Value string `gorm:"type:text"`
}
