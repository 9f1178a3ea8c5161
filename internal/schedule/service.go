package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spadesk/internal/bizclock"
	"spadesk/internal/catalog"
	"spadesk/internal/db"
	"spadesk/internal/events"
	"spadesk/internal/metrics"
	"spadesk/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the transactional persistence the scheduler runs against. *db.DB implements it.
type Store interface {
	WithTx(ctx context.Context, fn func(tx *db.Tx) error) error
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	ListBookingsInRange(ctx context.Context, from, to time.Time, includeDrafts bool) ([]model.Booking, error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// BookingEvent is the payload of booking and combo events.
type BookingEvent struct {
	BookingIDs  []int64   `json:"booking_ids"`
	ServiceName string    `json:"service_name"`
	ClientName  string    `json:"client_name"`
	ResourceIDs []string  `json:"resource_ids"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	ComboLinkID string    `json:"combo_link_id,omitempty"`
}

// FullyBookedEvent is published when a request finds no free resource.
type FullyBookedEvent struct {
	Category catalog.Category `json:"category"`
	StartAt  time.Time        `json:"start_at"`
	EndAt    time.Time        `json:"end_at"`
}

// Service creates, moves and cancels live bookings.
type Service struct {
	store    Store
	catalog  *catalog.Catalog
	assigner *Assigner
	events   EventPublisher
	attempts int
	logger   *zerolog.Logger
}

func NewService(store Store, c *catalog.Catalog, eventBus EventPublisher, retryAttempts int, logger *zerolog.Logger) *Service {
	if retryAttempts <= 0 {
		retryAttempts = db.DefaultRetryAttempts
	}
	return &Service{
		store:    store,
		catalog:  c,
		assigner: NewAssigner(c),
		events:   eventBus,
		attempts: retryAttempts,
		logger:   logger,
	}
}

// Assigner exposes the resource assigner bound to the service catalog.
func (s *Service) Assigner() *Assigner {
	return s.assigner
}

// CreateBookingRequest describes a single-service booking.
type CreateBookingRequest struct {
	ServiceID  int64               `json:"service_id"`
	StaffID    *int64              `json:"staff_id,omitempty"`
	StartAt    time.Time           `json:"start_at"`
	ClientName string              `json:"client_name"`
	Status     model.BookingStatus `json:"status,omitempty"`
	// ResourceID pins the booking to one resource instead of the first free one.
	ResourceID string `json:"resource_id,omitempty"`
}

// CreateComboRequest describes a combo booking; both legs share one start.
type CreateComboRequest struct {
	ServiceID    int64               `json:"service_id"`
	StaffID      *int64              `json:"staff_id,omitempty"`
	AddonStaffID *int64              `json:"addon_staff_id,omitempty"`
	StartAt      time.Time           `json:"start_at"`
	HeadSpaFirst bool                `json:"head_spa_first"`
	ClientName   string              `json:"client_name"`
	Status       model.BookingStatus `json:"status,omitempty"`
}

// CreateBooking places a single service on the first free resource of its category.
func (s *Service) CreateBooking(ctx context.Context, req CreateBookingRequest) (*model.Booking, error) {
	svc, ok := s.catalog.Service(req.ServiceID)
	if !ok {
		return nil, fmt.Errorf("service %d: %w", req.ServiceID, model.ErrUnknownService)
	}
	if svc.IsCombo() {
		return nil, fmt.Errorf("service %d: %w", svc.ID, model.ErrComboService)
	}
	status, err := initialStatus(req.Status)
	if err != nil {
		return nil, err
	}

	start := req.StartAt.UTC()
	end := start.Add(time.Duration(svc.DurationMinutes) * time.Minute)
	category := catalog.CategoryFor(svc)

	var created *model.Booking
	err = s.withRetry(ctx, "create_booking", func(tx *db.Tx) error {
		if err := s.checkStaff(ctx, tx, svc, req.StaffID); err != nil {
			return err
		}
		res, err := s.place(ctx, tx, category, req.ResourceID, start, end)
		if err != nil {
			return err
		}
		b := &model.Booking{
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			StaffID:     req.StaffID,
			ResourceID:  res.ID,
			StartAt:     start,
			EndAt:       end,
			Status:      status,
			ClientName:  req.ClientName,
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}
		created = b
		return nil
	})
	if err != nil {
		s.reportFailure(err, category, start, end)
		return nil, err
	}

	metrics.IncBookingCreated("single")
	s.publish(events.BookingCreated, eventFor(created))
	s.logger.Info().Int64("booking_id", created.ID).Str("resource", created.ResourceID).
		Time("start", created.StartAt).Msg("Booking created")
	return created, nil
}

// CreateCombo splits a combo service into two linked legs and places both, or neither.
func (s *Service) CreateCombo(ctx context.Context, req CreateComboRequest) (model.ComboPair, error) {
	svc, ok := s.catalog.Service(req.ServiceID)
	if !ok {
		return model.ComboPair{}, fmt.Errorf("service %d: %w", req.ServiceID, model.ErrUnknownService)
	}
	status, err := initialStatus(req.Status)
	if err != nil {
		return model.ComboPair{}, err
	}
	plan, err := SplitCombo(svc, req.StartAt.UTC(), req.HeadSpaFirst)
	if err != nil {
		return model.ComboPair{}, err
	}
	addonStaff := req.AddonStaffID
	if addonStaff == nil {
		addonStaff = req.StaffID
	}

	var pair model.ComboPair
	var missing LegPlan
	err = s.withRetry(ctx, "create_combo", func(tx *db.Tx) error {
		if err := s.checkStaff(ctx, tx, svc, req.StaffID); err != nil {
			return err
		}
		if err := s.checkStaff(ctx, tx, svc, addonStaff); err != nil {
			return err
		}

		primaryRes, ok, err := s.assigner.FindResource(ctx, tx, LayerLive, plan.Primary.Category, plan.Primary.Start, plan.Primary.End)
		if err != nil {
			return err
		}
		if !ok {
			missing = plan.Primary
			return fmt.Errorf("%s leg: %w", plan.Primary.Category, model.ErrResourceUnavailable)
		}
		addonRes, ok, err := s.assigner.FindResource(ctx, tx, LayerLive, plan.Addon.Category, plan.Addon.Start, plan.Addon.End)
		if err != nil {
			return err
		}
		if !ok {
			missing = plan.Addon
			return fmt.Errorf("%w: %s leg: %w", model.ErrComboLegConflict, plan.Addon.Category, model.ErrResourceUnavailable)
		}

		linkID := uuid.NewString()
		primary := &model.Booking{
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			StaffID:     req.StaffID,
			ResourceID:  primaryRes.ID,
			StartAt:     plan.Primary.Start,
			EndAt:       plan.Primary.End,
			Status:      status,
			ComboLinkID: linkID,
			IsComboMain: true,
			ClientName:  req.ClientName,
		}
		addon := &model.Booking{
			ServiceID:   svc.ID,
			ServiceName: svc.Name,
			StaffID:     addonStaff,
			ResourceID:  addonRes.ID,
			StartAt:     plan.Addon.Start,
			EndAt:       plan.Addon.End,
			Status:      status,
			ComboLinkID: linkID,
			ClientName:  req.ClientName,
		}
		if err := tx.InsertBooking(ctx, primary); err != nil {
			return err
		}
		if err := tx.InsertBooking(ctx, addon); err != nil {
			return err
		}
		pair = model.ComboPair{Primary: primary, Addon: addon}
		return nil
	})
	if err != nil {
		s.reportFailure(err, missing.Category, missing.Start, missing.End)
		return model.ComboPair{}, err
	}

	metrics.IncBookingCreated("combo")
	s.publish(events.ComboCreated, pairEvent(pair))
	s.logger.Info().Str("combo_link_id", pair.Primary.ComboLinkID).
		Str("primary", pair.Primary.ResourceID).Str("addon", pair.Addon.ResourceID).
		Bool("head_spa_first", plan.HeadSpaFirst).Msg("Combo created")
	return pair, nil
}

// MoveBooking shifts a booking to newStart, keeping its resource when still free.
// Moving one leg of a combo moves the whole pair.
func (s *Service) MoveBooking(ctx context.Context, id int64, newStart time.Time) (*model.Booking, error) {
	current, err := s.store.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.IsCombo() {
		pair, err := s.MoveCombo(ctx, current.ComboLinkID, newStart)
		if err != nil {
			return nil, err
		}
		if pair.Primary.ID == id {
			return pair.Primary, nil
		}
		return pair.Addon, nil
	}

	start := newStart.UTC()
	var moved *model.Booking
	var category catalog.Category
	err = s.withRetry(ctx, "move_booking", func(tx *db.Tx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if err := checkMovable(b); err != nil {
			return err
		}
		category = s.categoryOf(b)
		end := start.Add(b.Duration())

		res, err := s.relocate(ctx, tx, category, b.ResourceID, start, end, b.ID)
		if err != nil {
			return err
		}
		b.ResourceID = res.ID
		b.StartAt = start
		b.EndAt = end
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		moved = b
		return nil
	})
	if err != nil {
		s.reportFailure(err, category, start, start.Add(current.Duration()))
		return nil, err
	}

	s.publish(events.BookingMoved, eventFor(moved))
	return moved, nil
}

// MoveCombo recomputes both legs of a pair for newStart, preserving the stored leg order,
// and re-validates both resources. Both legs commit together or neither does.
func (s *Service) MoveCombo(ctx context.Context, linkID string, newStart time.Time) (model.ComboPair, error) {
	start := newStart.UTC()
	var moved model.ComboPair
	var missing LegPlan
	err := s.withRetry(ctx, "move_combo", func(tx *db.Tx) error {
		pair, err := tx.GetComboPair(ctx, linkID)
		if err != nil {
			return err
		}
		for _, leg := range pair.Legs() {
			if err := checkMovable(leg); err != nil {
				return err
			}
		}

		plan := ReplanPair(pair, start, s.categoryOf(pair.Primary))
		exclude := []int64{pair.Primary.ID, pair.Addon.ID}

		primaryRes, err := s.relocate(ctx, tx, plan.Primary.Category, pair.Primary.ResourceID, plan.Primary.Start, plan.Primary.End, exclude...)
		if err != nil {
			missing = plan.Primary
			return err
		}
		addonRes, err := s.relocate(ctx, tx, plan.Addon.Category, pair.Addon.ResourceID, plan.Addon.Start, plan.Addon.End, exclude...)
		if errors.Is(err, model.ErrResourceUnavailable) {
			missing = plan.Addon
			return fmt.Errorf("%w: %w", model.ErrComboLegConflict, err)
		}
		if err != nil {
			return err
		}

		pair.Primary.ResourceID, pair.Primary.StartAt, pair.Primary.EndAt = primaryRes.ID, plan.Primary.Start, plan.Primary.End
		pair.Addon.ResourceID, pair.Addon.StartAt, pair.Addon.EndAt = addonRes.ID, plan.Addon.Start, plan.Addon.End
		if err := tx.UpdateBooking(ctx, pair.Primary); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, pair.Addon); err != nil {
			return err
		}
		moved = pair
		return nil
	})
	if err != nil {
		s.reportFailure(err, missing.Category, missing.Start, missing.End)
		return model.ComboPair{}, err
	}

	s.publish(events.ComboMoved, pairEvent(moved))
	return moved, nil
}

// CancelBooking cancels a booking; a combo leg cancels its sibling too. Cancelling an
// already cancelled booking is a no-op.
func (s *Service) CancelBooking(ctx context.Context, id int64) error {
	var cancelled []*model.Booking
	err := s.withRetry(ctx, "cancel_booking", func(tx *db.Tx) error {
		cancelled = nil
		legs, err := loadGroup(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, b := range legs {
			if b.Status == model.StatusCancelled {
				continue
			}
			if err := checkTransition(b, model.StatusCancelled); err != nil {
				return err
			}
			b.Status = model.StatusCancelled
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			cancelled = append(cancelled, b)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(cancelled) == 0 {
		return nil
	}

	metrics.IncBookingCancelled()
	s.publish(events.BookingCancelled, eventFor(cancelled...))
	s.logger.Info().Int64("booking_id", id).Int("rows", len(cancelled)).Msg("Booking cancelled")
	return nil
}

// UpdateStatus moves a booking (both legs for combos) along its lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id int64, status model.BookingStatus) ([]model.Booking, error) {
	if status == model.StatusCancelled {
		if err := s.CancelBooking(ctx, id); err != nil {
			return nil, err
		}
		legs, err := s.reload(ctx, id)
		return legs, err
	}

	var out []model.Booking
	err := s.withRetry(ctx, "update_status", func(tx *db.Tx) error {
		out = nil
		legs, err := loadGroup(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, b := range legs {
			if err := checkTransition(b, status); err != nil {
				return err
			}
			b.Status = status
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			out = append(out, *b)
		}
		return nil
	})
	return out, err
}

// GridRow is one resource line of the day view.
type GridRow struct {
	Resource catalog.Resource `json:"resource"`
	Bookings []model.Booking  `json:"bookings"`
}

// Grid returns the live bookings of a local date per resource, in registry order.
func (s *Service) Grid(ctx context.Context, date string) ([]GridRow, error) {
	day, err := bizclock.ParseDate(date)
	if err != nil {
		return nil, err
	}
	from, to := bizclock.DayBounds(day)
	rows, err := s.store.ListBookingsInRange(ctx, from, to, false)
	if err != nil {
		return nil, err
	}

	resources := s.catalog.Resources()
	grid := make([]GridRow, len(resources))
	index := make(map[string]int, len(resources))
	for i, r := range resources {
		grid[i] = GridRow{Resource: r, Bookings: []model.Booking{}}
		index[r.ID] = i
	}
	for _, b := range rows {
		i, ok := index[b.ResourceID]
		if !ok {
			s.logger.Warn().Int64("booking_id", b.ID).Str("resource", b.ResourceID).Msg("Booking on unknown resource")
			continue
		}
		grid[i].Bookings = append(grid[i].Bookings, b)
	}
	return grid, nil
}

func (s *Service) withRetry(ctx context.Context, op string, fn func(tx *db.Tx) error) error {
	return db.Retry(ctx, s.attempts, func() error {
		err := s.store.WithTx(ctx, fn)
		if errors.Is(err, model.ErrConcurrentModification) {
			metrics.IncConcurrentModification(op)
			s.logger.Warn().Err(err).Str("operation", op).Msg("Serialization conflict, retrying")
		}
		return err
	})
}

// place resolves a resource for a new booking, honouring a pinned resource when given.
func (s *Service) place(ctx context.Context, tx *db.Tx, category catalog.Category, pinned string, start, end time.Time) (catalog.Resource, error) {
	if pinned != "" {
		res, ok := s.catalog.Resource(pinned)
		if !ok || res.Category != category {
			return catalog.Resource{}, fmt.Errorf("resource %q cannot host %s", pinned, category)
		}
		free, err := s.assigner.IsFree(ctx, tx, LayerLive, res.ID, start, end)
		if err != nil {
			return catalog.Resource{}, err
		}
		if !free {
			return catalog.Resource{}, fmt.Errorf("resource %s: %w", res.ID, model.ErrResourceUnavailable)
		}
		return res, nil
	}

	res, ok, err := s.assigner.FindResource(ctx, tx, LayerLive, category, start, end)
	if err != nil {
		return catalog.Resource{}, err
	}
	if !ok {
		return catalog.Resource{}, fmt.Errorf("%s %s-%s: %w", category,
			bizclock.FormatClock(start), bizclock.FormatClock(end), model.ErrResourceUnavailable)
	}
	return res, nil
}

// relocate keeps the current resource when it is still free, otherwise picks another one
// of the same category.
func (s *Service) relocate(ctx context.Context, tx *db.Tx, category catalog.Category, current string, start, end time.Time, exclude ...int64) (catalog.Resource, error) {
	if res, ok := s.catalog.Resource(current); ok && res.Category == category {
		free, err := s.assigner.IsFree(ctx, tx, LayerLive, current, start, end, exclude...)
		if err != nil {
			return catalog.Resource{}, err
		}
		if free {
			return res, nil
		}
	}
	res, ok, err := s.assigner.FindResource(ctx, tx, LayerLive, category, start, end, exclude...)
	if err != nil {
		return catalog.Resource{}, err
	}
	if !ok {
		return catalog.Resource{}, fmt.Errorf("%s %s-%s: %w", category,
			bizclock.FormatClock(start), bizclock.FormatClock(end), model.ErrResourceUnavailable)
	}
	return res, nil
}

// categoryOf resolves the category a stored booking must stay in.
func (s *Service) categoryOf(b *model.Booking) catalog.Category {
	if res, ok := s.catalog.Resource(b.ResourceID); ok {
		return res.Category
	}
	svc, ok := s.catalog.Service(b.ServiceID)
	if !ok {
		return catalog.CategoryMassageSeat
	}
	if svc.IsCombo() {
		primary, addon := catalog.ComboCategories(svc)
		if b.Leg() == model.LegHeadSpaAddon {
			return addon
		}
		return primary
	}
	return catalog.CategoryFor(svc)
}

func (s *Service) checkStaff(ctx context.Context, tx *db.Tx, svc catalog.Service, staffID *int64) error {
	if staffID == nil {
		return nil
	}
	staff, err := tx.GetStaff(ctx, *staffID)
	if err != nil {
		return err
	}
	if !staff.Active {
		return fmt.Errorf("staff %s is no longer active: %w", staff.Name, model.ErrStaffNotAllowed)
	}
	if !svc.AllowsStaff(staff.ID) {
		return fmt.Errorf("staff %s for %s: %w", staff.Name, svc.Name, model.ErrStaffNotAllowed)
	}
	return nil
}

func (s *Service) reportFailure(err error, category catalog.Category, start, end time.Time) {
	if !errors.Is(err, model.ErrResourceUnavailable) || category == "" {
		return
	}
	metrics.IncFullyBooked(string(category))
	s.publish(events.FullyBooked, FullyBookedEvent{Category: category, StartAt: start, EndAt: end})
}

func (s *Service) publish(eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}

func (s *Service) reload(ctx context.Context, id int64) ([]model.Booking, error) {
	var out []model.Booking
	err := s.store.WithTx(ctx, func(tx *db.Tx) error {
		legs, err := loadGroup(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, b := range legs {
			out = append(out, *b)
		}
		return nil
	})
	return out, err
}

// loadGroup returns the booking and, for combos, its sibling.
func loadGroup(ctx context.Context, tx *db.Tx, id int64) ([]*model.Booking, error) {
	b, err := tx.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsCombo() {
		return []*model.Booking{b}, nil
	}
	pair, err := tx.GetComboPair(ctx, b.ComboLinkID)
	if err != nil {
		return nil, err
	}
	return pair.Legs(), nil
}

func initialStatus(s model.BookingStatus) (model.BookingStatus, error) {
	switch s {
	case "":
		return model.StatusConfirmed, nil
	case model.StatusHold, model.StatusConfirmed:
		return s, nil
	}
	return "", fmt.Errorf("cannot create booking with status %s: %w", s, model.ErrInvalidTransition)
}

var transitions = map[model.BookingStatus][]model.BookingStatus{
	model.StatusHold:      {model.StatusConfirmed, model.StatusCancelled},
	model.StatusConfirmed: {model.StatusActive, model.StatusCancelled, model.StatusHold},
	model.StatusActive:    {model.StatusCompleted, model.StatusCancelled},
}

func checkTransition(b *model.Booking, to model.BookingStatus) error {
	if b.IsDraft() {
		return fmt.Errorf("booking %d is a draft: %w", b.ID, model.ErrInvalidTransition)
	}
	for _, allowed := range transitions[b.Status] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("cannot move booking %d from %s to %s: %w", b.ID, b.Status, to, model.ErrInvalidTransition)
}

func checkMovable(b *model.Booking) error {
	switch b.Status {
	case model.StatusHold, model.StatusConfirmed:
		return nil
	}
	return fmt.Errorf("cannot move booking %d with status %s: %w", b.ID, b.Status, model.ErrInvalidTransition)
}

func eventFor(rows ...*model.Booking) BookingEvent {
	ev := BookingEvent{}
	for i, b := range rows {
		ev.BookingIDs = append(ev.BookingIDs, b.ID)
		ev.ResourceIDs = append(ev.ResourceIDs, b.ResourceID)
		if i == 0 || b.StartAt.Before(ev.StartAt) {
			ev.StartAt = b.StartAt
		}
		if b.EndAt.After(ev.EndAt) {
			ev.EndAt = b.EndAt
		}
		ev.ServiceName = b.ServiceName
		ev.ClientName = b.ClientName
		ev.ComboLinkID = b.ComboLinkID
	}
	return ev
}

func pairEvent(p model.ComboPair) BookingEvent {
	return eventFor(p.Primary, p.Addon)
}
