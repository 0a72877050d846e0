package statusservice

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/airenas/council/internal/pkg/api"
	"github.com/airenas/council/internal/pkg/persistence"
	"github.com/airenas/council/internal/pkg/test"
	"github.com/airenas/council/internal/pkg/test/mocks"
	"github.com/airenas/council/internal/pkg/utils"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	wsHandlerMock *mockWSConnHandler
	dbMock        *mocks.DB
	tData         *Data
	tEcho         *echo.Echo
)

var created = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func initTest(t *testing.T) {
	t.Helper()
	wsHandlerMock = &mockWSConnHandler{}
	dbMock = &mocks.DB{}
	tData = &Data{DB: dbMock, WSHandler: wsHandlerMock}
	tEcho = initRoutes(tData)
	dbMock.On("LoadJob", mock.Anything, "1").Return(&persistence.Job{ID: "1", UserID: "u1", Status: "FAILED",
		Error: utils.ToSQLStr("all providers failed"), Created: created, Updated: created.Add(time.Minute)}, nil)
	dbMock.On("LoadJob", mock.Anything, mock.Anything).Return(nil, nil)
}

func TestWrongPath(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/invalid", nil)
	testCode(t, req, http.StatusNotFound)
}

func TestWrongMethod(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodPost, "/status/1", nil)
	testCode(t, req, http.StatusMethodNotAllowed)
}

func Test_Status_Returns(t *testing.T) {
	initTest(t)
	req := test.UserRequest(http.MethodGet, "/status/1", "u1")
	resp := testCode(t, req, http.StatusOK)
	res := test.Decode[api.Job](t, resp.Result())
	assert.Equal(t, api.Job{ID: "1", Status: "FAILED", Error: "all providers failed",
		CreatedAt: "2026-03-01T10:00:00Z", UpdatedAt: "2026-03-01T10:01:00Z"}, res)
}

func Test_Status_NotFound(t *testing.T) {
	initTest(t)
	testCode(t, httptest.NewRequest(http.MethodGet, "/status/2", nil), http.StatusNotFound)
}

func Test_Status_OtherUser(t *testing.T) {
	initTest(t)
	req := test.UserRequest(http.MethodGet, "/status/1", "u2")
	testCode(t, req, http.StatusNotFound)
}

func Test_Status_Fail(t *testing.T) {
	initTest(t)
	dbMock.ExpectedCalls = nil
	dbMock.On("LoadJob", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("olia"))
	testCode(t, httptest.NewRequest(http.MethodGet, "/status/1", nil), http.StatusInternalServerError)
}

func Test_List(t *testing.T) {
	initTest(t)
	dbMock.On("ListJobs", mock.Anything, mock.Anything).Return([]*persistence.Job{
		{ID: "2", Status: "PENDING", Created: created}, {ID: "1", Status: "SUCCESS", Created: created}}, nil)
	req := test.UserRequest(http.MethodGet, "/transcriptions?status=SUCCESS&from=01-03-2026&to=02-03-2026&limit=5&offset=10", "u1")

	resp := testCode(t, req, http.StatusOK)

	res := test.Decode[[]api.Job](t, resp.Result())
	require.Len(t, res, 2)
	assert.Equal(t, "2", res[0].ID)
	f := dbMock.Calls[0].Arguments.Get(1).(*persistence.JobFilter)
	assert.Equal(t, &persistence.JobFilter{UserID: "u1", Status: "SUCCESS", From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		To: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond), Limit: 5, Offset: 10}, f)
}

func Test_List_Empty(t *testing.T) {
	initTest(t)
	dbMock.On("ListJobs", mock.Anything, mock.Anything).Return([]*persistence.Job{}, nil)
	req := test.UserRequest(http.MethodGet, "/transcriptions", "u1")
	resp := testCode(t, req, http.StatusOK)
	assert.Equal(t, "[]", test.RStr(t, resp.Body)[:2])
	f := dbMock.Calls[0].Arguments.Get(1).(*persistence.JobFilter)
	assert.Equal(t, defaultLimit, f.Limit)
}

func Test_List_Fails(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		noUser   bool
		wantCode int
	}{
		{name: "No user", noUser: true, wantCode: http.StatusUnauthorized},
		{name: "Status", query: "status=DONE", wantCode: http.StatusBadRequest},
		{name: "From", query: "from=2026-01-01", wantCode: http.StatusBadRequest},
		{name: "To", query: "to=xx", wantCode: http.StatusBadRequest},
		{name: "Range", query: "from=02-03-2026&to=01-03-2026", wantCode: http.StatusBadRequest},
		{name: "Limit", query: "limit=0", wantCode: http.StatusBadRequest},
		{name: "Limit max", query: "limit=1000", wantCode: http.StatusBadRequest},
		{name: "Limit str", query: "limit=a", wantCode: http.StatusBadRequest},
		{name: "Offset", query: "offset=-1", wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			initTest(t)
			req := httptest.NewRequest(http.MethodGet, "/transcriptions?"+tt.query, nil)
			if !tt.noUser {
				req.Header.Set(api.HeaderUserID, "u1")
			}
			testCode(t, req, tt.wantCode)
			assert.Empty(t, dbMock.Calls)
		})
	}
}

func Test_parseTime(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		end     bool
		want    time.Time
		wantErr bool
	}{
		{name: "empty", in: "", want: time.Time{}},
		{name: "date", in: "05-02-2026", want: time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)},
		{name: "date end", in: "05-02-2026", end: true, want: time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)},
		{name: "rfc3339", in: "2026-02-05T10:11:12Z", end: true, want: time.Date(2026, 2, 5, 10, 11, 12, 0, time.UTC)},
		{name: "wrong", in: "2026/02/05", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTime(tt.in, tt.end)
			if tt.wantErr {
				assert.NotNil(t, err)
				return
			}
			require.Nil(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
		})
	}
}

func Test_Live(t *testing.T) {
	initTest(t)
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	testCode(t, req, http.StatusOK)
}

func testCode(t *testing.T, req *http.Request, code int) *httptest.ResponseRecorder {
	t.Helper()
	return test.Code(t, tEcho, req, code)
}

func Test_validate(t *testing.T) {
	initTest(t)
	tests := []struct {
		name    string
		data    *Data
		wantErr bool
	}{
		{name: "OK", data: &Data{DB: dbMock, WSHandler: wsHandlerMock}, wantErr: false},
		{name: "Fail Handler", data: &Data{DB: dbMock}, wantErr: true},
		{name: "Fail DB", data: &Data{WSHandler: wsHandlerMock}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := validate(tt.data); (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

type mockWSConnHandler struct{ mock.Mock }

func (m *mockWSConnHandler) HandleConnection(wc WsConn) error {
	args := m.Called(wc)
	return args.Error(0)
}

func (m *mockWSConnHandler) GetConnections(id string) ([]WsConn, bool) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).([]WsConn), args.Bool(1)
}
