package repo

import (
	"context"
	"testing"
	"time"
)

func TestChatsStats(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()

	n, max, err := ChatsStats(ctx, db, "no-journey")
	if err != nil || n != 0 || max != nil {
		t.Fatalf("empty stats: %d %v %v", n, max, err)
	}

	_, _, req, chat := seedAcceptedChat(t, db)
	n, before, err := ChatsStats(ctx, db, req.ReceiverJourneyID)
	if err != nil || n != 1 || before == nil {
		t.Fatalf("stats: %d %v %v", n, before, err)
	}

	if err := TouchChat(ctx, db, chat.ID, before.Add(time.Minute), false); err != nil {
		t.Fatalf("TouchChat: %v", err)
	}
	_, after, _ := ChatsStats(ctx, db, req.SenderJourneyID)
	if after == nil || !after.After(*before) {
		t.Fatalf("max updated_at should advance: before=%v after=%v", before, after)
	}
}

func TestMessagesStats(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	sender, _, _, chat := seedAcceptedChat(t, db)

	n, newest, err := MessagesStats(ctx, db, chat.ID)
	if err != nil || n != 0 || newest != nil {
		t.Fatalf("empty stats: %d %v %v", n, newest, err)
	}

	_, _ = CreateMessage(ctx, db, chat.ID, sender.ID, "a")
	m2, _ := CreateMessage(ctx, db, chat.ID, sender.ID, "b")

	n, newest, err = MessagesStats(ctx, db, chat.ID)
	if err != nil || n != 2 || newest == nil || !newest.Equal(m2.CreatedAt) {
		t.Fatalf("stats: %d %v %v (want newest %v)", n, newest, err, m2.CreatedAt)
	}
}
