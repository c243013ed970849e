package decor

import (
	"fmt"
	"strings"
)

// MaxMessageLen is Discord's limit on message content.
const MaxMessageLen = 2000

const sparkleRow = "⋆｡°✩⋆｡°✩⋆｡°✩"

// PersonalizeDM wraps the shared wish body with the recipient's name. Every
// member gets the same body; only the name changes. A blank name becomes "there".
func PersonalizeDM(body, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hey %s ✨\n%s\n\n%s\n\n%s\nP.S. %s… if you want, say hi back, I'd really love to be friends 🌸",
		name, sparkleRow, body, sparkleRow, name)
}

// PersonalizePreviewDM is PersonalizeDM with a short "about today" section,
// used when previewing the day's wish to a single user.
func PersonalizePreviewDM(body, name string, days []string, description string) string {
	msg := PersonalizeDM(body, name)
	description = strings.TrimSpace(description)
	if description == "" || len(days) == 0 {
		return msg
	}
	about := fmt.Sprintf("\n\n**About %s**\n> %s", strings.Join(days, " & "), strings.ReplaceAll(description, "\n", "\n> "))
	if len(msg)+len(about) > MaxMessageLen {
		return msg
	}
	return msg + about
}

const blockedNoticeBase = "I tried to DM you today's wish but couldn't. " +
	"Please enable DMs (or add me as a friend) so I can DM you next time:\n\n"

// moreReserve leaves room for the "(+N more)" line.
const moreReserve = 40

// BlockedNotice builds one channel message mentioning members whose DMs
// failed for the first time. When every mention does not fit in a single
// message, whole mentions are kept up to the limit and the rest are counted
// in a trailing "(+N more)" line. It returns "" when there is nobody to mention.
func BlockedNotice(mentions []string) string {
	if len(mentions) == 0 {
		return ""
	}
	full := blockedNoticeBase + strings.Join(mentions, " ")
	if len(full) <= MaxMessageLen {
		return full
	}

	budget := MaxMessageLen - len(blockedNoticeBase) - moreReserve
	var sb strings.Builder
	kept := 0
	for _, m := range mentions {
		need := len(m)
		if kept > 0 {
			need++
		}
		if sb.Len()+need > budget {
			break
		}
		if kept > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(m)
		kept++
	}
	return fmt.Sprintf("%s%s\n(+%d more)", blockedNoticeBase, sb.String(), len(mentions)-kept)
}
