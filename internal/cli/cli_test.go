package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dhlim/wordbank/internal/clock"
	"github.com/dhlim/wordbank/internal/remote"
	mock_remote "github.com/dhlim/wordbank/internal/remote/mocks"
	"github.com/dhlim/wordbank/internal/session"
	"github.com/dhlim/wordbank/internal/token"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newStartedSession builds a started session over a permissive remote mock so
// the background sync worker can drain answer mirrors.
func newStartedSession(t *testing.T) *session.Session {
	t.Helper()
	color.NoColor = true

	ctrl := gomock.NewController(t)
	mock := mock_remote.NewMockClient(ctrl)
	mock.EXPECT().List(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(remote.ListResult{}, nil).AnyTimes()
	mock.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(remote.Record{}, nil).AnyTimes()
	mock.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(remote.Record{}, nil).AnyTimes()

	s, err := session.New(session.Options{
		DataDir:    t.TempDir(),
		Remote:     mock,
		WordsTable: "tblWords",
		UsersTable: "tblUsers",
		Clock:      clock.NewFakeClock(testNow),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	tok := token.Mint("01012345678", testNow.Add(24*time.Hour))
	require.NoError(t, s.Start(context.Background(), tok, "default"))
	return s
}

// driveSession iterates a scripted run until it ends.
func driveSession(t *testing.T, s Session) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		err := s.Session(ctx)
		if errors.Is(err, errEnd) {
			return
		}
		require.NoError(t, err)
	}
	t.Fatal("scripted session never ended")
}
