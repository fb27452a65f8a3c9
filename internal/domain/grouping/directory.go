package grouping

import (
	"log/slog"
	"sync"
	"time"

	"github.com/alem-hub/study-group-finder/internal/domain/shared"
	"github.com/alem-hub/study-group-finder/internal/domain/student"
)

// DefaultLowRatingThreshold is the average session rating below which a full
// group is considered underperforming by the maintenance sweep.
const DefaultLowRatingThreshold = 2.0

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Option configures a Directory.
type Option func(*Directory)

// WithShuffler sets the random source used by Reshuffle.
func WithShuffler(s Shuffler) Option {
	return func(d *Directory) {
		if s != nil {
			d.shuffler = s
		}
	}
}

// WithPublisher sets the event publisher. Events are published after the
// directory lock is released, before the operation returns.
func WithPublisher(p shared.EventPublisher) Option {
	return func(d *Directory) {
		d.publisher = p
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the measurement recorder.
func WithMetrics(r Recorder) Option {
	return func(d *Directory) {
		if r != nil {
			d.metrics = r
		}
	}
}

// WithLowRatingThreshold overrides DefaultLowRatingThreshold.
func WithLowRatingThreshold(v float64) Option {
	return func(d *Directory) {
		d.lowRating = v
	}
}

// WithCorrelationIDs sets the generator of event correlation IDs.
// Without it events carry no correlation ID.
func WithCorrelationIDs(gen func() string) Option {
	return func(d *Directory) {
		d.newID = gen
	}
}

// WithClock overrides time.Now, used for snapshot timestamps and sweep durations.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		if now != nil {
			d.now = now
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// Directory owns every group and the waiting queues of one (subject, language)
// pair. All methods are safe for concurrent use; each holds the directory lock
// for its whole duration.
type Directory struct {
	mu sync.Mutex

	subject  string
	language string

	groups  []*Group
	waiting TieredQueue
	lastID  int

	shuffler  Shuffler
	publisher shared.EventPublisher
	logger    *slog.Logger
	metrics   Recorder
	lowRating float64
	now       func() time.Time
	newID     func() string

	// correlation is set while a sweep runs so that every event it causes
	// shares the sweep's ID.
	correlation string

	// pending holds the events of the current operation until unlock.
	pending []shared.Event
}

// NewDirectory creates an empty directory.
func NewDirectory(subject, language string, opts ...Option) *Directory {
	d := &Directory{
		subject:   subject,
		language:  language,
		shuffler:  NewSeededShuffler(0),
		logger:    slog.Default(),
		metrics:   NopRecorder(),
		lowRating: DefaultLowRatingThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("subject", subject, "language", language)
	return d
}

// Subject returns the subject the directory belongs to.
func (d *Directory) Subject() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subject
}

// Language returns the language of the directory.
func (d *Directory) Language() string {
	return d.language
}

// Key identifies the directory in events and projections.
func (d *Directory) Key() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.key()
}

func (d *Directory) key() string {
	return d.subject + ":" + d.language
}

// Rename moves the directory under a new subject.
func (d *Directory) Rename(subject string) {
	d.mu.Lock()
	defer d.unlock()

	if subject == d.subject {
		return
	}
	previous := d.key()
	d.subject = subject
	d.logger.Info("directory renamed", "previous_key", previous, "key", d.key())
	d.publishLocked(shared.NewDirectoryRenamedEvent(d.key(), previous))
}

// ══════════════════════════════════════════════════════════════════════════════
// WAITING QUEUES
// ══════════════════════════════════════════════════════════════════════════════

// Enqueue places a copy of the record in the waiting queue of the tier its
// score falls in; the record's own Tier field is not trusted.
// Ids must be unique across the queues and rosters of the directory.
func (d *Directory) Enqueue(rec *student.Record) error {
	owned, err := admit("Enqueue", rec)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.knownLocked(owned.ID) {
		return ErrDuplicateID
	}

	d.waiting.Enqueue(owned.Tier, owned)
	d.metrics.WaitingChanged(d.key(), owned.Tier, d.waiting.Len(owned.Tier))

	return nil
}

// admit validates rec and returns a directory-owned copy whose tier is
// derived from its score.
func admit(op string, rec *student.Record) (*student.Record, error) {
	if rec == nil {
		return nil, ErrNilRecord
	}

	owned := rec.Clone()
	if err := owned.Validate(); err != nil {
		return nil, shared.WrapError("grouping", op, shared.ErrInvalidInput, "invalid student record", err)
	}
	owned.Tier = student.TierForScore(owned.Score)

	return &owned, nil
}

// Dequeue removes the longest-waiting record of a tier.
func (d *Directory) Dequeue(tier student.Tier) (*student.Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rec, ok := d.waiting.Dequeue(tier)
	if ok {
		d.metrics.WaitingChanged(d.key(), tier, d.waiting.Len(tier))
	}
	return rec, ok
}

// WaitingLen returns how many records wait in a tier.
func (d *Directory) WaitingLen(tier student.Tier) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiting.Len(tier)
}

// Waiting returns copies of the records waiting in a tier, oldest first.
func (d *Directory) Waiting(tier student.Tier) []student.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waiting.Records(tier)
}

func (d *Directory) knownLocked(id int) bool {
	if d.waiting.contains(id) {
		return true
	}
	for _, g := range d.groups {
		if _, ok := g.roster.Find(id); ok {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// FORMATION
// ══════════════════════════════════════════════════════════════════════════════

// FormGroup fills the first vacant group, or a newly allocated one, with
// 2 high, 3 mid and 2 low students taken from the waiting queues.
// ErrNotFormed is the normal outcome when any tier is short.
func (d *Directory) FormGroup() (GroupView, error) {
	d.mu.Lock()
	defer d.unlock()

	g, reused, ok := d.formLocked()
	if !ok {
		d.metrics.FormationMissed(d.key())
		return GroupView{}, ErrNotFormed
	}

	view := g.View()
	d.metrics.GroupFormed(d.key(), reused)
	for _, t := range student.Tiers {
		d.metrics.WaitingChanged(d.key(), t, d.waiting.Len(t))
	}
	d.logger.Info("group formed", "group_id", g.id, "reused", reused)
	d.publishLocked(shared.NewGroupFormedEvent(d.key(), g.id, reused, view.MemberIDs()))

	return view, nil
}

// FormAll forms groups until the queues run short and returns them.
func (d *Directory) FormAll() []GroupView {
	var formed []GroupView
	for {
		view, err := d.FormGroup()
		if err != nil {
			return formed
		}
		formed = append(formed, view)
	}
}

func (d *Directory) formLocked() (*Group, bool, bool) {
	if !d.waiting.Counts().Covers(Quota) {
		return nil, false, false
	}

	g := d.firstVacantLocked()
	reused := g != nil
	if !reused {
		d.lastID++
		g = newGroup(d.lastID)
		d.groups = append(d.groups, g)
	}

	picked := make([]pick, 0, GroupSize)

	for _, tier := range student.Tiers {
		for i := 0; i < Quota.Of(tier); i++ {
			rec, ok := d.waiting.Dequeue(tier)
			if !ok {
				d.rollbackLocked(picked, reused)
				return nil, false, false
			}
			picked = append(picked, pick{tier: tier, rec: rec})
		}
	}

	// A reused slot starts over: ratings of its previous members do not
	// carry into the next sweep.
	g.roster.Clear()
	g.ratings = nil
	g.custom = false
	for _, p := range picked {
		g.roster.Add(p.rec)
	}

	return g, reused, true
}

// rollbackLocked returns picked records to the head of their queues in their
// original order and drops a speculatively allocated group.
func (d *Directory) rollbackLocked(picked []pick, reused bool) {
	for i := len(picked) - 1; i >= 0; i-- {
		d.waiting.queue(picked[i].tier).pushFront(picked[i].rec)
	}
	if !reused {
		d.groups = d.groups[:len(d.groups)-1]
		d.lastID--
	}
	d.logger.Warn("group formation rolled back", "returned", len(picked))
}

type pick struct {
	tier student.Tier
	rec  *student.Record
}

func (d *Directory) firstVacantLocked() *Group {
	for _, g := range d.groups {
		if g.Vacant() {
			return g
		}
	}
	return nil
}

// CreateGroup allocates an empty group with the next sequential id.
func (d *Directory) CreateGroup() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastID++
	d.groups = append(d.groups, newGroup(d.lastID))
	return d.lastID
}

// AssignMember places a record directly into a group, bypassing the queues.
// The group is marked custom.
func (d *Directory) AssignMember(groupID int, rec *student.Record) error {
	owned, err := admit("AssignMember", rec)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	g := d.groupLocked(groupID)
	if g == nil {
		return ErrGroupNotFound
	}
	if d.knownLocked(owned.ID) {
		return ErrDuplicateID
	}

	g.roster.Add(owned)
	g.custom = true

	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LOOKUP
// ══════════════════════════════════════════════════════════════════════════════

// SearchGroup returns a snapshot of the group with the given id.
func (d *Directory) SearchGroup(id int) (GroupView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g := d.groupLocked(id)
	if g == nil {
		return GroupView{}, ErrGroupNotFound
	}
	return g.View(), nil
}

// Groups returns snapshots of all groups in creation order, vacant ones included.
func (d *Directory) Groups() []GroupView {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]GroupView, 0, len(d.groups))
	for _, g := range d.groups {
		out = append(out, g.View())
	}
	return out
}

// Classify splits the groups into full (exactly GroupSize members) and
// partial (any other size, vacant included), keeping directory order.
func (d *Directory) Classify() (full, partial []GroupView) {
	d.mu.Lock()
	defer d.mu.Unlock()

	f, p := d.classifyLocked()
	for _, g := range f {
		full = append(full, g.View())
	}
	for _, g := range p {
		partial = append(partial, g.View())
	}
	return full, partial
}

func (d *Directory) classifyLocked() (full, partial []*Group) {
	for _, g := range d.groups {
		if g.Full() {
			full = append(full, g)
		} else {
			partial = append(partial, g)
		}
	}
	return full, partial
}

func (d *Directory) groupLocked(id int) *Group {
	for _, g := range d.groups {
		if g.id == id {
			return g
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RATINGS & SCORES
// ══════════════════════════════════════════════════════════════════════════════

// RecordSessionRating appends a session rating to a group.
func (d *Directory) RecordSessionRating(groupID int, v float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	g := d.groupLocked(groupID)
	if g == nil {
		return ErrGroupNotFound
	}
	return g.RecordSessionRating(v)
}

// UpdateScore changes a member's score. The member stays in the group even
// when the tier changes; the roster counts follow the new tier.
func (d *Directory) UpdateScore(groupID, memberID int, score float64) (student.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	g := d.groupLocked(groupID)
	if g == nil {
		return student.Record{}, ErrGroupNotFound
	}

	rec, err := g.roster.UpdateScore(memberID, score)
	if err != nil {
		return student.Record{}, err
	}
	return rec.Clone(), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REBALANCING
// ══════════════════════════════════════════════════════════════════════════════

// Reshuffle pools the members of a and b, permutes them, and deals them back:
// each record goes to a while a is below quota for its tier, otherwise to b.
// b may end up above GroupSize or skewed; the total is preserved.
func (d *Directory) Reshuffle(a, b int) (GroupView, GroupView, error) {
	d.mu.Lock()
	defer d.unlock()

	ga, gb := d.groupLocked(a), d.groupLocked(b)
	if ga == nil || gb == nil {
		return GroupView{}, GroupView{}, ErrGroupNotFound
	}
	if ga == gb {
		return GroupView{}, GroupView{}, ErrSameGroup
	}

	d.reshuffleLocked(ga, gb)
	return ga.View(), gb.View(), nil
}

func (d *Directory) reshuffleLocked(a, b *Group) {
	sizeA, sizeB := a.Size(), b.Size()

	pool := append(a.roster.take(), b.roster.take()...)
	d.shuffler.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	for _, rec := range pool {
		if a.roster.Counts().Of(rec.Tier) < Quota.Of(rec.Tier) {
			a.roster.Add(rec)
		} else {
			b.roster.Add(rec)
		}
	}
	if !b.Vacant() && !b.Composition().Valid() {
		b.custom = true
	}

	d.metrics.Reshuffled(d.key())
	d.logger.Debug("groups reshuffled",
		"group_a", a.id, "group_b", b.id,
		"composition_a", a.Composition().String(), "composition_b", b.Composition().String(),
	)
	d.publishLocked(shared.NewGroupsReshuffledEvent(d.key(), a.id, b.id, sizeA, sizeB))
}

// MergeGroups moves every member of b into a when the result is exactly
// 2 high, 3 mid and 2 low. b keeps its id and becomes vacant. A rejected
// merge changes nothing and reports false.
func (d *Directory) MergeGroups(a, b int) bool {
	d.mu.Lock()
	defer d.unlock()

	ga, gb := d.groupLocked(a), d.groupLocked(b)
	if ga == nil || gb == nil || ga == gb {
		return false
	}
	return d.mergeLocked(ga, gb)
}

func (d *Directory) mergeLocked(a, b *Group) bool {
	moved := b.Size()
	ok := a.roster.Merge(&b.roster)
	d.metrics.MergeAttempted(d.key(), ok)
	if !ok {
		d.logger.Debug("merge rejected",
			"target", a.id, "source", b.id,
			"composition", a.Composition().Plus(b.Composition()).String(),
		)
		return false
	}

	a.custom = true
	d.logger.Info("groups merged", "target", a.id, "source", b.id)
	d.publishLocked(shared.NewGroupsMergedEvent(d.key(), a.id, b.id, a.Size()))
	d.publishLocked(shared.NewGroupVacatedEvent(d.key(), b.id, shared.VacateMerged, moved))

	return true
}

// RemoveGroup clears a group's roster. The id and slot persist and the
// members are dropped, not re-queued.
func (d *Directory) RemoveGroup(id int) bool {
	d.mu.Lock()
	defer d.unlock()

	g := d.groupLocked(id)
	if g == nil {
		return false
	}
	d.vacateLocked(g, shared.VacateRemoved)
	return true
}

func (d *Directory) vacateLocked(g *Group, reason string) {
	dropped := g.Size()
	g.Clear()
	d.logger.Info("group vacated", "group_id", g.id, "reason", reason, "dropped", dropped)
	d.publishLocked(shared.NewGroupVacatedEvent(d.key(), g.id, reason, dropped))
}

// RemoveMember takes a member out of a group. One waiting student of the same
// tier, if any, joins the group first; afterwards partial groups are checked
// for merges.
func (d *Directory) RemoveMember(groupID, memberID int) error {
	d.mu.Lock()
	defer d.unlock()

	g := d.groupLocked(groupID)
	if g == nil {
		return ErrGroupNotFound
	}
	rec, ok := g.roster.Find(memberID)
	if !ok {
		return ErrMemberNotFound
	}
	tier := rec.Tier

	replacementID := 0
	if repl, ok := d.waiting.Dequeue(tier); ok {
		g.roster.Add(repl)
		replacementID = repl.ID
		d.metrics.WaitingChanged(d.key(), tier, d.waiting.Len(tier))
	}
	g.roster.Remove(memberID)

	d.metrics.MemberDeparted(d.key(), replacementID != 0)
	d.logger.Info("member departed",
		"group_id", groupID, "member_id", memberID,
		"tier", tier.String(), "replacement_id", replacementID,
	)
	d.publishLocked(shared.NewMemberDepartedEvent(d.key(), groupID, memberID, tier.String(), replacementID))

	d.mergeEligibleLocked()
	return nil
}

// mergeEligibleLocked pairs partial, non-vacant groups whose sizes add up to
// GroupSize and tries to merge the later one into the earlier one.
func (d *Directory) mergeEligibleLocked() int {
	merges := 0
	for i, g := range d.groups {
		if g.Vacant() || g.Full() {
			continue
		}
		for _, h := range d.groups[i+1:] {
			if h.Vacant() || h.Full() {
				continue
			}
			if g.Size()+h.Size() != GroupSize {
				continue
			}
			if d.mergeLocked(g, h) {
				merges++
				break
			}
		}
	}
	return merges
}

// publishLocked queues an event; unlock delivers it.
func (d *Directory) publishLocked(event shared.Event) {
	if d.publisher == nil {
		return
	}
	if id := d.correlationLocked(); id != "" {
		event = shared.WithCorrelation(event, id)
	}
	d.pending = append(d.pending, event)
}

// unlock releases the directory lock, then publishes the queued events in
// the order they were raised. Subscribers never run under the lock, so they
// may read the directory; events of concurrent operations can interleave.
func (d *Directory) unlock() {
	events := d.pending
	d.pending = nil
	d.mu.Unlock()

	for _, event := range events {
		if err := d.publisher.Publish(event); err != nil {
			d.logger.Warn("failed to publish event",
				"event_type", event.EventType(),
				"error", err,
			)
		}
	}
}

func (d *Directory) correlationLocked() string {
	if d.correlation != "" {
		return d.correlation
	}
	if d.newID != nil {
		return d.newID()
	}
	return ""
}
