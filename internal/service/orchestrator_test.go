package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"golge-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchSubstitutesPlaceholderForEmptyReply(t *testing.T) {
	session, wh, history, _ := newTestSession(0)
	ctx := context.Background()

	history.seed("7", model.RoomYuzlesme, model.RoleAssistant, "Merhaba.")
	require.NoError(t, session.SwitchRoom(ctx, model.RoomYuzlesme))
	session.SendMessage(ctx, "sessizlik")

	call, ok := wh.next(waitShort)
	require.True(t, ok)
	// webhook 成功但没有任何可识别的回复字段
	call.resolve("")

	require.True(t, waitTranscriptLen(session, model.RoomYuzlesme, 3, waitShort))
	transcript := session.Transcript(model.RoomYuzlesme)
	assert.Equal(t, fallbackReply, transcript[2].Content, "content must never be empty")
}

func TestDispatchFailureAppendsVisibleError(t *testing.T) {
	session, wh, history, _ := newTestSession(0)
	ctx := context.Background()

	history.seed("7", model.RoomYuzlesme, model.RoleAssistant, "Merhaba.")
	require.NoError(t, session.SwitchRoom(ctx, model.RoomYuzlesme))
	session.SendMessage(ctx, "duyuyor musun")

	call, ok := wh.next(waitShort)
	require.True(t, ok)
	call.fail(fmt.Errorf("connection reset"))

	require.True(t, waitTranscriptLen(session, model.RoomYuzlesme, 3, waitShort))
	transcript := session.Transcript(model.RoomYuzlesme)
	assert.Equal(t, errorReply, transcript[2].Content)
	assert.Equal(t, model.SenderAI, transcript[2].Sender, "errors use the conversational channel")
	assert.Equal(t, StateErrored, session.RoomStateOf(model.RoomYuzlesme))

	// 不自动重试：没有新的派发
	_, ok = wh.next(100 * time.Millisecond)
	assert.False(t, ok)
}

func TestDispatchFailureOffscreenStaysSilent(t *testing.T) {
	session, wh, history, _ := newTestSession(0)
	ctx := context.Background()

	history.seed("7", model.RoomKokler, model.RoleAssistant, "Kökler.")
	history.seed("7", model.RoomYuzlesme, model.RoleAssistant, "Merhaba.")

	require.NoError(t, session.SwitchRoom(ctx, model.RoomKokler))
	session.SendMessage(ctx, "bir şey sorabilir miyim")
	call, ok := wh.next(waitShort)
	require.True(t, ok)

	require.NoError(t, session.SwitchRoom(ctx, model.RoomYuzlesme))
	call.fail(fmt.Errorf("timeout"))
	time.Sleep(50 * time.Millisecond)

	// 离屏失败：当前房间不出现错误气泡，错误文案也不落库
	for _, msg := range session.Transcript(model.RoomYuzlesme) {
		assert.NotEqual(t, errorReply, msg.Content)
	}
	assert.NotContains(t, history.roomContents("7", model.RoomKokler), errorReply)
	assert.Equal(t, StateStale, session.RoomStateOf(model.RoomKokler))
}

func TestDispatchReportEventCarriesParsedShadowReport(t *testing.T) {
	session, wh, history, _ := newTestSession(0)
	ctx := context.Background()

	history.seed("7", model.RoomYuzlesme, model.RoleAssistant, "Merhaba.")
	require.NoError(t, session.SwitchRoom(ctx, model.RoomYuzlesme))
	drainEvents(session)

	session.SendMessage(ctx, "raporumu ver")
	call, ok := wh.next(waitShort)
	require.True(t, ok)
	call.resolve(`İşte raporun: {"type":"shadow_report","archetype":"Kaçak","analysis":"Kaçıyorsun.","homework":["Aynaya bak"]}`)

	require.True(t, waitTranscriptLen(session, model.RoomYuzlesme, 3, waitShort))

	var report *model.ShadowReport
	for {
		var done bool
		select {
		case ev := <-session.Events():
			if ev.Type == EventMessage && ev.Report != nil {
				report = ev.Report
			}
		default:
			done = true
		}
		if done {
			break
		}
	}
	require.NotNil(t, report, "message event should carry the parsed report")
	assert.Equal(t, "Kaçak", report.Archetype)
	assert.Equal(t, []string{"Aynaya bak"}, report.Homework)
}
