package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ratiba/core/notification"
)

func Test_notificationApi(t *testing.T) {
	env := setup(t)
	teacher := env.Teacher(t, "teacher", 1, 0)
	student := env.Student(t, "student")
	other := env.Student(t, "other")

	for i := 0; i < 3; i++ {
		_, err := env.Notifications.Dispatch(context.Background(), teacher.ID, notification.Greeting{
			StudentID: student.ID, SenderName: teacher.Name,
		})
		require.NoError(t, err)
	}
	inbox := env.Inbox(t, student)
	require.Len(t, inbox, 3)
	first := inbox[0]

	env.run(t, []httpTest{
		{name: "auth required", path: "/v1/notifications", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "unseen count", path: "/v1/notifications/unseen-count", token: env.token(t, student),
			wantCode: http.StatusOK, wantData: marchallObj(t, okResp(map[string]int{"count": 3})),
		},
		{
			name: "nothing for others", path: "/v1/notifications/unseen-count", token: env.token(t, other),
			wantCode: http.StatusOK, wantData: marchallObj(t, okResp(map[string]int{"count": 0})),
		},
		{
			name: "not the recipient", method: http.MethodPost, path: fmt.Sprintf("/v1/notifications/%d/seen", first.ID),
			token: env.token(t, other), wantCode: http.StatusForbidden, wantData: marchallObj(t, errResp("permission denied")),
		},
		{
			name: "unknown notification", method: http.MethodPost, path: "/v1/notifications/999/seen",
			token: env.token(t, student), wantCode: http.StatusNotFound, wantData: marchallObj(t, errResp("notification not found")),
		},
	})

	rec := env.do(t, http.MethodGet, "/v1/notifications", env.token(t, student))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var page struct {
		Total int `json:"total"`
		Data  []struct {
			ID       int    `json:"id"`
			Type     string `json:"type"`
			Title    string `json:"title"`
			Content  string `json:"content"`
			SenderID int    `json:"sender_id"`
			Seen     bool   `json:"seen"`
		} `json:"data"`
	}
	decode(t, rec, &page)
	require.Equal(t, 3, page.Total)
	assert.Equal(t, "greeting", page.Data[0].Type)
	assert.Equal(t, teacher.ID, page.Data[0].SenderID)
	assert.Equal(t, teacher.Name+" congratulates you", page.Data[0].Content)

	for i := 0; i < 2; i++ { // marking twice is harmless
		rec = env.do(t, http.MethodPost, fmt.Sprintf("/v1/notifications/%d/seen", first.ID), env.token(t, student))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/v1/notifications/unseen-count", env.token(t, student))
	var count struct{ Count int }
	decode(t, rec, &count)
	assert.Equal(t, 2, count.Count)
}
