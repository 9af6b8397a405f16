package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"golge-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitShort = 2 * time.Second

func TestSwitchRoomAutoInitFreshRoom(t *testing.T) {
	session, wh, history, _ := newTestSession(0)
	ctx := context.Background()

	// 空房间 + 取数成功 → 恰好派发一次开场指令
	require.NoError(t, session.SwitchRoom(ctx, model.RoomPara))

	call, ok := wh.next(waitShort)
	require.True(t, ok, "expected exactly one intro dispatch")
	assert.Equal(t, "para", call.req.Room)
	assert.True(t, strings.HasPrefix(call.req.Message, "[SISTEM"), "non-default rooms get a directive intro")
	assert.Equal(t, "7", call.req.SessionID)
	assert.Equal(t, "kadın", call.req.Gender)
	assert.Equal(t, ModeShadow, call.req.Mode)

	call.resolve("Para senin için ne anlama geliyor?")
	require.True(t, waitTranscriptLen(session, model.RoomPara, 1, waitShort))

	// 可见序列只有 AI 的开场白，指令本身绝不渲染
	transcript := session.Transcript(model.RoomPara)
	assert.Equal(t, model.SenderAI, transcript[0].Sender)
	assert.Equal(t, "Para senin için ne anlama geliyor?", transcript[0].Content)

	// 指令与开场白都已落库
	stored := history.roomContents("7", model.RoomPara)
	require.Len(t, stored, 2)
	assert.True(t, model.IsSystemDirective(stored[0]))
}

func TestSwitchRoomDefaultRoomUsesStartTrigger(t *testing.T) {
	session, wh, _, _ := newTestSession(0)

	require.NoError(t, session.SwitchRoom(context.Background(), model.RoomYuzlesme))

	call, ok := wh.next(waitShort)
	require.True(t, ok)
	assert.Equal(t, model.StartTrigger, call.req.Message)
	call.resolve("Merhaba. Ben senin gölge benliğinim.")
}

func TestSwitchRoomReflectiveIntroForKokler(t *testing.T) {
	session, wh, _, _ := newTestSession(0)

	require.NoError(t, session.SwitchRoom(context.Background(), model.RoomKokler))

	call, ok := wh.next(waitShort)
	require.True(t, ok)
	assert.Contains(t, call.req.Message, "Sakin")
	assert.NotContains(t, call.req.Message, "meydan okuyan")
	call.resolve("Çocukluğundan bir ses duyuyorum...")
}

func TestAutoInitAtMostOncePerRoom(t *testing.T) {
	session, wh, _, _ := newTestSession(0)
	ctx := context.Background()

	require.NoError(t, session.SwitchRoom(ctx, model.RoomPara))
	call, ok := wh.next(waitShort)
	require.True(t, ok)
	call.resolve("Açılış.")
	require.True(t, waitTranscriptLen(session, model.RoomPara, 1, waitShort))

	// 历史已经非空，第二次进入不允许再开场
	require.NoError(t, session.SwitchRoom(ctx, model.RoomPara))
	_, ok = wh.next(100 * time.Millisecond)
	assert.False(t, ok, "second switch must not re-issue the intro")
}

func TestFetchErrorSuppressesAutoInit(t *testing.T) {
	session, wh, history, _ := newTestSession(0)
	ctx := context.Background()

	history.failFetch = true
	require.NoError(t, session.SwitchRoom(ctx, model.RoomPara))

	// 取数失败时按空房间展示，但绝不自动开场
	_, ok := wh.next(100 * time.Millisecond)
	assert.False(t, ok, "fetch failure must not trigger an intro")
	assert.Empty(t, session.Transcript(model.RoomPara))

	// 后端恢复后，同一房间仍可以正常开场
	history.failFetch = false
	require.NoError(t, session.SwitchRoom(ctx, model.RoomPara))
	call, ok := wh.next(waitShort)
	require.True(t, ok)
	call.resolve("Açılış.")
}

func TestSendMessageOptimisticAppend(t *testing.T) {
	session, wh, history, _ := newTestSession(0)
	ctx := context.Background()

	history.seed("7", model.RoomYuzlesme, model.RoleAssistant, "Merhaba.")
	require.NoError(t, session.SwitchRoom(ctx, model.RoomYuzlesme))

	session.SendMessage(ctx, "bugün kendimden kaçtım")

	// 用户消息在任何网络往返之前就已经可见
	transcript := session.Transcript(model.RoomYuzlesme)
	require.Len(t, transcript, 2)
	assert.Equal(t, model.SenderUser, transcript[1].Sender)
	assert.Equal(t, "bugün kendimden kaçtım", transcript[1].Content)

	call, ok := wh.next(waitShort)
	require.True(t, ok)
	call.resolve("Neden kaçtın?")
	require.True(t, waitTranscriptLen(session, model.RoomYuzlesme, 3, waitShort))
	assert.Equal(t, StateDelivered, session.RoomStateOf(model.RoomYuzlesme))
}

func TestStaleResponseNeverReachesVisibleTranscript(t *testing.T) {
	session, wh, history, _ := newTestSession(0)
	ctx := context.Background()

	history.seed("7", model.RoomKokler, model.RoleAssistant, "Köklerine bak.")
	history.seed("7", model.RoomYuzlesme, model.RoleAssistant, "Merhaba.")

	require.NoError(t, session.SwitchRoom(ctx, model.RoomKokler))
	session.SendMessage(ctx, "annemden bahsetmek istiyorum")
	call, ok := wh.next(waitShort)
	require.True(t, ok)

	// 响应还没回来，用户切到另一个房间
	require.NoError(t, session.SwitchRoom(ctx, model.RoomYuzlesme))
	call.resolve("Annenle ilgili ne hissediyorsun?")

	// 迟到的响应归属 kokler：必须落库，绝不能出现在 yuzlesme 屏幕上
	deadline := time.Now().Add(waitShort)
	for time.Now().Before(deadline) {
		if len(history.roomContents("7", model.RoomKokler)) == 3 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Contains(t, history.roomContents("7", model.RoomKokler), "Annenle ilgili ne hissediyorsun?")
	for _, msg := range session.Transcript(model.RoomYuzlesme) {
		assert.NotEqual(t, "Annenle ilgili ne hissediyorsun?", msg.Content)
	}
	assert.Equal(t, StateStale, session.RoomStateOf(model.RoomKokler))
}

func TestRoomIsolationWithInterleavedResponses(t *testing.T) {
	session, wh, history, _ := newTestSession(0)
	ctx := context.Background()

	history.seed("7", model.RoomYuzlesme, model.RoleAssistant, "Merhaba.")
	history.seed("7", model.RoomKokler, model.RoleAssistant, "Kökler seni bekliyor.")

	// yuzlesme 里有一条未完成的请求
	require.NoError(t, session.SwitchRoom(ctx, model.RoomYuzlesme))
	session.SendMessage(ctx, "öfkeliyim")
	pendingYuzlesme, ok := wh.next(waitShort)
	require.True(t, ok)

	// 切到 kokler 再发一条
	require.NoError(t, session.SwitchRoom(ctx, model.RoomKokler))
	session.SendMessage(ctx, "hello")
	callKokler, ok := wh.next(waitShort)
	require.True(t, ok)
	assert.Equal(t, "kokler", callKokler.req.Room)

	callKokler.resolve("Merhaba, kökler seni duyuyor.")
	require.True(t, waitTranscriptLen(session, model.RoomKokler, 3, waitShort))

	// kokler: seed + 恰好一条用户消息 + 恰好一条 AI 回复
	transcript := session.Transcript(model.RoomKokler)
	assert.Equal(t, "hello", transcript[1].Content)
	assert.Equal(t, model.SenderAI, transcript[2].Sender)

	// yuzlesme 的旧请求现在才完成，不得影响 kokler 的屏幕
	pendingYuzlesme.resolve("Öfkenin kaynağı ne?")
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, session.Transcript(model.RoomKokler), 3)
	for _, msg := range session.Transcript(model.RoomKokler) {
		assert.NotEqual(t, "Öfkenin kaynağı ne?", msg.Content)
	}
}

func TestVisibilityStallDeclaresError(t *testing.T) {
	session, wh, history, _ := newTestSession(time.Millisecond)
	ctx := context.Background()

	history.seed("7", model.RoomYuzlesme, model.RoleAssistant, "Merhaba.")
	require.NoError(t, session.SwitchRoom(ctx, model.RoomYuzlesme))
	session.SendMessage(ctx, "beni duyuyor musun")
	call, ok := wh.next(waitShort)
	require.True(t, ok)

	// 页面在请求未完成时被隐藏超过宽限期
	session.SetVisibility(true)
	time.Sleep(20 * time.Millisecond)
	session.SetVisibility(false)

	transcript := session.Transcript(model.RoomYuzlesme)
	require.Len(t, transcript, 3)
	assert.Equal(t, stalledReply, transcript[2].Content)
	assert.Equal(t, StateErrored, session.RoomStateOf(model.RoomYuzlesme))

	// 被作废的那一代请求即使随后成功，也不得再拼进屏幕
	call.resolve("Geç kalmış yanıt.")
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, session.Transcript(model.RoomYuzlesme), 3)
}

func TestSimyaGatingAndUnlockEvent(t *testing.T) {
	session, wh, _, progress := newTestSession(0)
	ctx := context.Background()

	err := session.SwitchRoom(ctx, model.RoomSimya)
	require.ErrorIs(t, err, ErrRoomLocked)
	drainEvents(session)

	// 完成两个房间后解锁，且恰好触发一次解锁事件
	progress.complete("7", model.RoomYuzlesme, model.RoomKokler)
	require.NoError(t, session.SwitchRoom(ctx, model.RoomSimya))

	sawUnlock := 0
	for {
		var done bool
		select {
		case ev := <-session.Events():
			if ev.Type == EventUnlock {
				sawUnlock++
			}
		default:
			done = true
		}
		if done {
			break
		}
	}
	assert.Equal(t, 1, sawUnlock)

	if call, ok := wh.next(waitShort); ok {
		call.resolve("Simya başlıyor.")
	}
}

func TestCompleteReportRecordsProgressAndDirective(t *testing.T) {
	session, wh, history, progress := newTestSession(0)
	ctx := context.Background()

	history.seed("7", model.RoomPara, model.RoleAssistant, "Para odasındasın.")
	require.NoError(t, session.SwitchRoom(ctx, model.RoomPara))

	session.CompleteReport(ctx, CompletedReport{
		Archetype: "Cimri",
		Tasks: []TaskResult{
			{Description: "Bir haftalık harcamalarını yaz", Done: true, Note: "zordu ama yaptım"},
			{Description: "Parasızlık korkunu anlat", Done: false},
		},
	})

	// 汇总消息作为用户消息立即可见
	transcript := session.Transcript(model.RoomPara)
	require.Len(t, transcript, 2)
	assert.True(t, strings.HasPrefix(transcript[1].Content, "[GÖREV RAPORU]"))
	assert.Contains(t, transcript[1].Content, "✅")
	assert.Contains(t, transcript[1].Content, "⬜")
	assert.Contains(t, transcript[1].Content, "Not: zordu ama yaptım")

	// 进度记录显式携带逐任务状态
	rooms, err := progress.CompletedRooms(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, []model.RoomType{model.RoomPara}, rooms)
	record := progress.records["7"]["para"]
	require.NotNil(t, record)
	assert.True(t, record.Completed)
	assert.JSONEq(t, "[true,false]", record.TaskStatus)

	// 随后派发"转向整合"的系统指令
	call, ok := wh.next(waitShort)
	require.True(t, ok)
	assert.True(t, model.IsSystemDirective(call.req.Message))
	assert.Contains(t, call.req.Message, "bütünleştirme")
	call.resolve("Raporunu gördüm. Devam edelim.")
}

func TestCommandsBeforeFirstRoomAreNoOps(t *testing.T) {
	session, wh, history, progress := newTestSession(0)
	ctx := context.Background()

	// 连接后、第一条 switch_room 之前到达的指令不得产生空房间归属
	session.SendMessage(ctx, "erken mesaj")
	session.SwitchMode(ctx, true)
	session.CompleteReport(ctx, CompletedReport{Archetype: "Kaçak"})

	_, ok := wh.next(100 * time.Millisecond)
	assert.False(t, ok, "nothing may be dispatched without a room")
	assert.Empty(t, history.roomContents("7", ""))
	rooms, err := progress.CompletedRooms(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, rooms)

	// 模式切换本身仍然生效，进入房间后的派发携带新模式
	assert.Equal(t, ModeSafe, session.Mode())
	require.NoError(t, session.SwitchRoom(ctx, model.RoomPara))
	call, ok := wh.next(waitShort)
	require.True(t, ok)
	assert.Equal(t, ModeSafe, call.req.Mode)
	call.resolve("Açılış.")
}

func TestSwitchModeDispatchesDirectiveOnly(t *testing.T) {
	session, wh, history, _ := newTestSession(0)
	ctx := context.Background()

	history.seed("7", model.RoomYuzlesme, model.RoleAssistant, "Merhaba.")
	require.NoError(t, session.SwitchRoom(ctx, model.RoomYuzlesme))
	before := session.Transcript(model.RoomYuzlesme)

	session.SwitchMode(ctx, true)
	assert.Equal(t, ModeSafe, session.Mode())

	call, ok := wh.next(waitShort)
	require.True(t, ok)
	assert.Equal(t, ModeSafe, call.req.Mode)
	assert.True(t, model.IsSystemDirective(call.req.Message))

	// 模式切换不触碰已有历史
	assert.Equal(t, before, session.Transcript(model.RoomYuzlesme))
	call.resolve("Tamam, daha nazik olacağım.")
}
