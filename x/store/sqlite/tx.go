package sqlite

import (
	"bytes"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/compose-network/ima-proxy/x/chains"
	"github.com/compose-network/ima-proxy/x/store"
)

var _ store.Tx = (*tx)(nil)

type tx struct {
	db       *gorm.DB
	writable bool
}

func (t *tx) check() error {
	if !t.writable {
		return store.ErrReadOnly
	}
	return nil
}

// Nested maps onto a GORM nested transaction, which SQLite runs as a SAVEPOINT.
func (t *tx) Nested(fn func(store.Tx) error) error {
	if err := t.check(); err != nil {
		return err
	}
	return t.db.Transaction(func(gtx *gorm.DB) error {
		return fn(&tx{db: gtx, writable: true})
	})
}

func upsert(columns []string, updates ...string) clause.OnConflict {
	cols := make([]clause.Column, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, clause.Column{Name: c})
	}
	if len(updates) == 0 {
		return clause.OnConflict{Columns: cols, DoNothing: true}
	}
	return clause.OnConflict{Columns: cols, DoUpdates: clause.AssignmentColumns(updates)}
}

func pairWhere(db *gorm.DB, pair chains.Pair) *gorm.DB {
	return db.Where("local_chain = ? AND remote_chain = ?", pair.Local.Hex(), pair.Remote.Hex())
}

func (t *tx) IsRegistered(scope chains.Hash, contract common.Address) (bool, error) {
	var n int64
	err := t.db.Model(&Registration{}).
		Where("scope = ? AND contract = ?", scope.Hex(), contract.Hex()).
		Count(&n).Error
	return n > 0, errors.Wrap(err, "failed to query registration")
}

func (t *tx) PutRegistration(scope chains.Hash, contract common.Address) error {
	if err := t.check(); err != nil {
		return err
	}
	rec := Registration{Scope: scope.Hex(), Contract: contract.Hex()}
	err := t.db.Clauses(upsert([]string{"scope", "contract"})).Create(&rec).Error
	return errors.Wrap(err, "failed to insert registration")
}

func (t *tx) DeleteRegistration(scope chains.Hash, contract common.Address) error {
	if err := t.check(); err != nil {
		return err
	}
	err := t.db.Where("scope = ? AND contract = ?", scope.Hex(), contract.Hex()).
		Delete(&Registration{}).Error
	return errors.Wrap(err, "failed to delete registration")
}

func (t *tx) Registrations(scope chains.Hash) ([]common.Address, error) {
	var recs []Registration
	if err := t.db.Where("scope = ?", scope.Hex()).Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list registrations")
	}
	out := make([]common.Address, 0, len(recs))
	for _, r := range recs {
		out = append(out, common.HexToAddress(r.Contract))
	}
	return sortedAddresses(out), nil
}

func (t *tx) HasRole(role string, account common.Address) (bool, error) {
	var n int64
	err := t.db.Model(&RoleMember{}).
		Where("role = ? AND account = ?", role, account.Hex()).
		Count(&n).Error
	return n > 0, errors.Wrap(err, "failed to query role")
}

func (t *tx) PutRole(role string, account common.Address) error {
	if err := t.check(); err != nil {
		return err
	}
	rec := RoleMember{Role: role, Account: account.Hex()}
	err := t.db.Clauses(upsert([]string{"role", "account"})).Create(&rec).Error
	return errors.Wrap(err, "failed to insert role member")
}

func (t *tx) DeleteRole(role string, account common.Address) error {
	if err := t.check(); err != nil {
		return err
	}
	err := t.db.Where("role = ? AND account = ?", role, account.Hex()).Delete(&RoleMember{}).Error
	return errors.Wrap(err, "failed to delete role member")
}

func (t *tx) RoleMembers(role string) ([]common.Address, error) {
	var recs []RoleMember
	if err := t.db.Where("role = ?", role).Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list role members")
	}
	out := make([]common.Address, 0, len(recs))
	for _, r := range recs {
		out = append(out, common.HexToAddress(r.Account))
	}
	return sortedAddresses(out), nil
}

func (t *tx) Channel(pair chains.Pair) (store.Channel, bool, error) {
	var rec ChannelRecord
	err := pairWhere(t.db, pair).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Channel{}, false, nil
	}
	if err != nil {
		return store.Channel{}, false, errors.Wrap(err, "failed to query channel")
	}
	return store.Channel{Incoming: rec.Incoming, Outgoing: rec.Outgoing, Watermark: rec.Watermark}, true, nil
}

func (t *tx) PutChannel(pair chains.Pair, ch store.Channel) error {
	if err := t.check(); err != nil {
		return err
	}
	rec := ChannelRecord{
		LocalChain:  pair.Local.Hex(),
		RemoteChain: pair.Remote.Hex(),
		Incoming:    ch.Incoming,
		Outgoing:    ch.Outgoing,
		Watermark:   ch.Watermark,
	}
	err := t.db.Clauses(upsert(
		[]string{"local_chain", "remote_chain"},
		"incoming", "outgoing", "watermark", "updated_at",
	)).Create(&rec).Error
	return errors.Wrap(err, "failed to upsert channel")
}

func (t *tx) DeleteChannel(pair chains.Pair) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := pairWhere(t.db, pair).Delete(&ChannelRecord{}).Error; err != nil {
		return errors.Wrap(err, "failed to delete channel")
	}
	return t.DeleteOutgoing(pair)
}

func (t *tx) AppendOutgoing(pair chains.Pair, entry chains.OutgoingEntry) error {
	if err := t.check(); err != nil {
		return err
	}
	rec := OutgoingMessage{
		LocalChain:  pair.Local.Hex(),
		RemoteChain: pair.Remote.Hex(),
		Counter:     entry.Counter,
		Sender:      entry.Message.Sender.Hex(),
		Destination: entry.Message.DestinationContract.Hex(),
		Data:        entry.Message.Data,
	}
	return errors.Wrap(t.db.Create(&rec).Error, "failed to append outgoing message")
}

func (t *tx) OutgoingRange(pair chains.Pair, from uint64, limit int) ([]chains.OutgoingEntry, error) {
	q := pairWhere(t.db, pair).Where("counter >= ?", from).Order("counter ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []OutgoingMessage
	if err := q.Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list outgoing messages")
	}
	out := make([]chains.OutgoingEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, chains.OutgoingEntry{
			Chain:   pair.Remote,
			Counter: r.Counter,
			Message: chains.Message{
				Sender:              common.HexToAddress(r.Sender),
				DestinationContract: common.HexToAddress(r.Destination),
				Data:                r.Data,
			},
		})
	}
	return out, nil
}

func (t *tx) DeleteOutgoing(pair chains.Pair) error {
	if err := t.check(); err != nil {
		return err
	}
	return errors.Wrap(pairWhere(t.db, pair).Delete(&OutgoingMessage{}).Error, "failed to delete outgoing messages")
}

func (t *tx) Link(pair chains.Pair) (store.Link, bool, error) {
	var rec LinkRecord
	err := pairWhere(t.db, pair).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Link{}, false, nil
	}
	if err != nil {
		return store.Link{}, false, errors.Wrap(err, "failed to query link")
	}
	return store.Link{
		Votes: chains.KillVotes{
			BySchainOwner: rec.KilledBySchainOwner,
			ByOperator:    rec.KilledByOperator,
		},
		Counterparts: splitAddresses(rec.Counterparts),
	}, true, nil
}

func (t *tx) PutLink(pair chains.Pair, link store.Link) error {
	if err := t.check(); err != nil {
		return err
	}
	rec := LinkRecord{
		LocalChain:          pair.Local.Hex(),
		RemoteChain:         pair.Remote.Hex(),
		KilledBySchainOwner: link.Votes.BySchainOwner,
		KilledByOperator:    link.Votes.ByOperator,
		Counterparts:        joinAddresses(link.Counterparts),
	}
	err := t.db.Clauses(upsert(
		[]string{"local_chain", "remote_chain"},
		"killed_by_schain_owner", "killed_by_operator", "counterparts",
	)).Create(&rec).Error
	return errors.Wrap(err, "failed to upsert link")
}

func (t *tx) PutReceipts(pair chains.Pair, receipts []store.Receipt) error {
	if err := t.check(); err != nil {
		return err
	}
	if len(receipts) == 0 {
		return nil
	}
	recs := make([]ReceiptRecord, 0, len(receipts))
	for _, r := range receipts {
		recs = append(recs, ReceiptRecord{
			ID:          r.ID.String(),
			LocalChain:  pair.Local.Hex(),
			RemoteChain: pair.Remote.Hex(),
			Counter:     r.Counter,
			Destination: r.Destination.Hex(),
			Success:     r.Success,
			Reason:      r.Reason,
			Error:       r.Error,
			ProcessedAt: r.ProcessedAt.UTC(),
		})
	}
	return errors.Wrap(t.db.Create(&recs).Error, "failed to insert receipts")
}

func (t *tx) Receipts(pair chains.Pair, from uint64, limit int) ([]store.Receipt, error) {
	q := pairWhere(t.db, pair).Where("counter >= ?", from).Order("counter ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []ReceiptRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list receipts")
	}
	out := make([]store.Receipt, 0, len(recs))
	for _, r := range recs {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt receipt id %q", r.ID)
		}
		out = append(out, store.Receipt{
			ID:          id,
			Source:      common.HexToHash(r.RemoteChain),
			Counter:     r.Counter,
			Destination: common.HexToAddress(r.Destination),
			Success:     r.Success,
			Reason:      r.Reason,
			Error:       r.Error,
			ProcessedAt: r.ProcessedAt.UTC(),
		})
	}
	return out, nil
}

func (t *tx) Balance(key store.BalanceKey) (*uint256.Int, error) {
	var rec BalanceRecord
	err := t.db.Where("scope = ? AND account = ? AND asset = ?", key.Scope.Hex(), key.Account.Hex(), key.Asset).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query balance")
	}
	amount, err := uint256.FromDecimal(rec.Amount)
	if err != nil {
		return nil, errors.Wrapf(err, "corrupt balance %q", rec.Amount)
	}
	return amount, nil
}

func (t *tx) PutBalance(key store.BalanceKey, amount *uint256.Int) error {
	if err := t.check(); err != nil {
		return err
	}
	rec := BalanceRecord{
		Scope:   key.Scope.Hex(),
		Account: key.Account.Hex(),
		Asset:   key.Asset,
		Amount:  amount.Dec(),
	}
	err := t.db.Clauses(upsert([]string{"scope", "account", "asset"}, "amount")).Create(&rec).Error
	return errors.Wrap(err, "failed to upsert balance")
}

func (t *tx) User(scope chains.Hash, user common.Address) (store.User, error) {
	var rec UserRecord
	err := t.db.Where("scope = ? AND account = ?", scope.Hex(), user.Hex()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.User{}, nil
	}
	if err != nil {
		return store.User{}, errors.Wrap(err, "failed to query user")
	}
	u := store.User{Active: rec.Active}
	if !rec.LastMessage.IsZero() {
		u.LastMessage = rec.LastMessage.UTC()
	}
	return u, nil
}

func (t *tx) PutUser(scope chains.Hash, user common.Address, u store.User) error {
	if err := t.check(); err != nil {
		return err
	}
	rec := UserRecord{
		Scope:       scope.Hex(),
		Account:     user.Hex(),
		Active:      u.Active,
		LastMessage: u.LastMessage.UTC(),
	}
	err := t.db.Clauses(upsert([]string{"scope", "account"}, "active", "last_message")).Create(&rec).Error
	return errors.Wrap(err, "failed to upsert user")
}

func (t *tx) Setting(key string) (string, bool, error) {
	var rec SettingRecord
	err := t.db.Where("name = ?", key).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "failed to query setting")
	}
	return rec.Value, true, nil
}

func (t *tx) PutSetting(key, value string) error {
	if err := t.check(); err != nil {
		return err
	}
	rec := SettingRecord{Name: key, Value: value}
	err := t.db.Clauses(upsert([]string{"name"}, "value")).Create(&rec).Error
	return errors.Wrap(err, "failed to upsert setting")
}

func joinAddresses(addrs []common.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		parts = append(parts, a.Hex())
	}
	return strings.Join(parts, ",")
}

func splitAddresses(s string) []common.Address {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]common.Address, 0, len(parts))
	for _, p := range parts {
		out = append(out, common.HexToAddress(p))
	}
	return out
}

func sortedAddresses(addrs []common.Address) []common.Address {
	slices.SortFunc(addrs, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return addrs
}
