package fleet

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/karanbh01/role-aggr/internal/common"
	"github.com/karanbh01/role-aggr/internal/models"
	"github.com/karanbh01/role-aggr/internal/services/pipeline"
)

type fakeRunner struct {
	mu       sync.Mutex
	ran      []string
	failOn   map[string]error
	inFlight int32
	maxSeen  int32
	delay    time.Duration
}

func (r *fakeRunner) Run(_ context.Context, board models.Board, _ pipeline.Options) (*models.RunResult, error) {
	current := atomic.AddInt32(&r.inFlight, 1)
	for {
		max := atomic.LoadInt32(&r.maxSeen)
		if current <= max || atomic.CompareAndSwapInt32(&r.maxSeen, max, current) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	defer atomic.AddInt32(&r.inFlight, -1)

	r.mu.Lock()
	r.ran = append(r.ran, board.Link)
	err := r.failOn[board.Link]
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return &models.RunResult{
		Board:    board.Link,
		Platform: board.Platform,
		Found:    10,
		Kept:     9,
		Inserted: 9,
		Failed:   1,
	}, nil
}

type fakeBoards struct {
	boards []models.Board
	err    error
}

func (b *fakeBoards) Boards(context.Context) ([]models.Board, error) { return b.boards, b.err }

func (b *fakeBoards) SeedBoard(context.Context, string, string, models.BoardType, string, string) (*models.Board, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBoards) BoardByLink(context.Context, string) (*models.Board, error) {
	return nil, errors.New("not implemented")
}

func (b *fakeBoards) GetOrCreateCompany(context.Context, string, string) (*models.Company, error) {
	return nil, errors.New("not implemented")
}

func board(platform, link string) models.Board {
	return models.Board{CompanyName: "Acme", Platform: platform, Link: link}
}

func allSupported(string) bool { return true }

func newTestFleet(runner *fakeRunner, boards []models.Board, config common.FleetConfig) *Service {
	return NewService(runner, &fakeBoards{boards: boards}, allSupported, config, arbor.NewLogger())
}

func TestRunAll(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestFleet(runner, []models.Board{
		board("workday", "https://a.example/board"),
		board("workday", "https://b.example/board"),
	}, common.FleetConfig{ParallelBoards: 1})

	summary, err := s.RunAll(context.Background(), pipeline.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Boards)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Zero(t, summary.Errored)
	assert.Equal(t, 20, summary.Jobs)
	assert.Equal(t, 18, summary.Inserted)
	assert.Equal(t, 2, summary.Failed)
	assert.ElementsMatch(t, []string{"https://a.example/board", "https://b.example/board"}, runner.ran)
}

func TestRunAll_BoardFailureIsolated(t *testing.T) {
	runner := &fakeRunner{failOn: map[string]error{
		"https://b.example/board": errors.New("list never rendered"),
	}}
	s := newTestFleet(runner, []models.Board{
		board("workday", "https://a.example/board"),
		board("workday", "https://b.example/board"),
		board("workday", "https://c.example/board"),
	}, common.FleetConfig{ParallelBoards: 1})

	summary, err := s.RunAll(context.Background(), pipeline.Options{})
	require.NoError(t, err, "one bad board never fails the fleet")

	assert.Equal(t, 3, summary.Boards)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Errored)
	assert.Len(t, runner.ran, 3, "every board is still attempted")
}

func TestRunAll_ParallelismBounded(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	boards := make([]models.Board, 6)
	for i := range boards {
		boards[i] = board("workday", "https://x.example/board/"+string(rune('a'+i)))
	}
	s := newTestFleet(runner, boards, common.FleetConfig{ParallelBoards: 2})

	_, err := s.RunAll(context.Background(), pipeline.Options{})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&runner.maxSeen), int32(2))
}

func TestRunAll_NoBoards(t *testing.T) {
	s := newTestFleet(&fakeRunner{}, nil, common.FleetConfig{})

	summary, err := s.RunAll(context.Background(), pipeline.Options{})
	require.NoError(t, err)
	assert.Zero(t, summary.Boards)
}

func TestRunAll_BoardsLoadFailure(t *testing.T) {
	s := NewService(&fakeRunner{}, &fakeBoards{err: errors.New("db gone")}, allSupported, common.FleetConfig{}, arbor.NewLogger())

	_, err := s.RunAll(context.Background(), pipeline.Options{})
	require.Error(t, err)
}

func TestGroupByPlatform_SkipList(t *testing.T) {
	s := newTestFleet(&fakeRunner{}, nil, common.FleetConfig{
		SkipPlatforms: []string{"LinkedIn", " indeed "},
	})

	grouped := s.groupByPlatform([]models.Board{
		board("workday", "https://a.example"),
		board("linkedin", "https://b.example"),
		board("Indeed", "https://c.example"),
	})

	require.Len(t, grouped, 1)
	assert.Len(t, grouped["workday"], 1)
}

func TestGroupByPlatform_AllowList(t *testing.T) {
	s := newTestFleet(&fakeRunner{}, nil, common.FleetConfig{
		Platforms: []string{"greenhouse"},
	})

	grouped := s.groupByPlatform([]models.Board{
		board("workday", "https://a.example"),
		board("greenhouse", "https://b.example"),
	})

	require.Len(t, grouped, 1)
	assert.Len(t, grouped["greenhouse"], 1)
}

func TestGroupByPlatform_UnsupportedDropped(t *testing.T) {
	supported := func(platform string) bool { return platform == "workday" }
	s := NewService(&fakeRunner{}, &fakeBoards{}, supported, common.FleetConfig{}, arbor.NewLogger())

	grouped := s.groupByPlatform([]models.Board{
		board("workday", "https://a.example"),
		board("mystery", "https://b.example"),
	})

	require.Len(t, grouped, 1)
	assert.Contains(t, grouped, "workday")
}

func TestGroupByPlatform_CaseInsensitive(t *testing.T) {
	s := newTestFleet(&fakeRunner{}, nil, common.FleetConfig{})

	grouped := s.groupByPlatform([]models.Board{
		board("Workday", "https://a.example"),
		board("WORKDAY", "https://b.example"),
	})

	require.Len(t, grouped, 1)
	assert.Len(t, grouped["workday"], 2)
}
