package service

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/Clark-Hu/restroom-finder/internal/auth"
	"github.com/Clark-Hu/restroom-finder/internal/domain"
	"github.com/Clark-Hu/restroom-finder/internal/events"
	"github.com/Clark-Hu/restroom-finder/internal/repository"
)

type fakeUsers struct {
	mu        sync.Mutex
	byEmail   map[string]domain.User
	existsErr error
	createErr error
	getErr    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: map[string]domain.User{}}
}

func (f *fakeUsers) EmailExists(_ context.Context, email string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	_, ok := f.byEmail[email]
	return ok, nil
}

func (f *fakeUsers) Create(_ context.Context, user domain.User) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.User{}, f.createErr
	}
	if _, ok := f.byEmail[user.Email]; ok {
		return domain.User{}, repository.ErrAlreadyExists
	}
	f.byEmail[user.Email] = user
	return user, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return domain.User{}, f.getErr
	}
	user, ok := f.byEmail[email]
	if !ok {
		return domain.User{}, repository.ErrNotFound
	}
	return user, nil
}

type fakeSequence struct {
	mu   sync.Mutex
	next int64
	err  error
}

func (f *fakeSequence) NextUserID(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.next++
	return f.next, nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return auth.ErrPasswordMismatch
	}
	return nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(userID int64) (string, error) {
	return "token-" + strconv.FormatInt(userID, 10), nil
}

type ratingKey struct{ user, restroom int64 }

// fakeRatings mimics the transactional repository in memory.
type fakeRatings struct {
	mu         sync.Mutex
	scores     map[ratingKey]float64
	aggregates map[int64]domain.RatingAggregate
	failWith   error
}

func newFakeRatings(restrooms ...int64) *fakeRatings {
	f := &fakeRatings{scores: map[ratingKey]float64{}, aggregates: map[int64]domain.RatingAggregate{}}
	for _, id := range restrooms {
		f.aggregates[id] = domain.RatingAggregate{}
	}
	return f
}

func (f *fakeRatings) Post(_ context.Context, userID, restroomID int64, score float64) (repository.RatingTransition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return repository.RatingTransition{}, f.failWith
	}
	before, ok := f.aggregates[restroomID]
	if !ok {
		return repository.RatingTransition{}, repository.ErrNotFound
	}
	k := ratingKey{userID, restroomID}
	if _, rated := f.scores[k]; rated {
		return repository.RatingTransition{}, repository.ErrAlreadyExists
	}
	after := before.Add(score)
	f.scores[k] = score
	f.aggregates[restroomID] = after
	return repository.RatingTransition{
		Rating: domain.Rating{UserID: userID, RestroomID: restroomID, Score: score},
		Before: before,
		After:  after,
	}, nil
}

func (f *fakeRatings) Edit(_ context.Context, userID, restroomID int64, score float64) (repository.RatingTransition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return repository.RatingTransition{}, f.failWith
	}
	k := ratingKey{userID, restroomID}
	previous, rated := f.scores[k]
	if !rated {
		return repository.RatingTransition{}, repository.ErrNotFound
	}
	before := f.aggregates[restroomID]
	after, err := before.Replace(previous, score)
	if err != nil {
		return repository.RatingTransition{}, err
	}
	f.scores[k] = score
	f.aggregates[restroomID] = after
	return repository.RatingTransition{
		Rating:        domain.Rating{UserID: userID, RestroomID: restroomID, Score: score},
		PreviousScore: &previous,
		Before:        before,
		After:         after,
	}, nil
}

func (f *fakeRatings) Exists(_ context.Context, userID, restroomID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return false, f.failWith
	}
	_, ok := f.scores[ratingKey{userID, restroomID}]
	return ok, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.RatedEvent
	err    error
}

func (p *recordingPublisher) PublishRated(_ context.Context, e events.RatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type fakeFinder struct {
	results []domain.NearbyRestroom
	err     error
	calls   int
	last    repository.NearestQuery
}

func (f *fakeFinder) Nearest(_ context.Context, q repository.NearestQuery) ([]domain.NearbyRestroom, error) {
	f.calls++
	f.last = q
	return f.results, f.err
}

type mapCache struct {
	entries map[string][]RestroomView
	getErr  error
}

func (c *mapCache) Get(_ context.Context, key string) ([]RestroomView, bool, error) {
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, views []RestroomView) error {
	c.entries[key] = views
	return nil
}

var errBoom = errors.New("boom")
