package boardirc

import (
	"crypto/subtle"
	"fmt"
	"regexp"
	"strings"
)

var validNickname = regexp.MustCompile("^[\\[\\]`_^{|}A-Za-z][\\[\\]`_^{|}A-Za-z0-9]{0,50}$")

// handleMessage dispatches a parsed line according to the registration
// phase.
func (s *Session) handleMessage(msg *ClientMessage) {
	if msg.Command == Command_Unknown {
		s.server.metrics.Commands.WithLabelValues("unknown").Inc()
	} else {
		s.server.metrics.Commands.WithLabelValues(msg.RawCommand).Inc()
	}

	switch s.phase {
	case phaseAwaitingPassword:
		s.handlePassword(msg)
	case phaseRegistering:
		s.handleRegistration(msg)
	default:
		s.handleCommand(msg)
	}
}

func (s *Session) handlePassword(msg *ClientMessage) {
	switch msg.Command {
	case Command_Pass:
		if len(msg.Parameters) == 0 {
			s.replyNeedMoreParams("PASS")
			return
		}
		if subtle.ConstantTimeCompare([]byte(msg.Parameters[0]), []byte(s.server.cfg.Password)) != 1 {
			s.reply("464 :Password incorrect")
			return
		}
		s.phase = phaseRegistering
	case Command_Cap:
		s.onCap(msg)
	case Command_Quit:
		s.disconnect("Client quit")
	}
}

func (s *Session) handleRegistration(msg *ClientMessage) {
	switch msg.Command {
	case Command_Nick:
		if len(msg.Parameters) == 0 {
			s.reply("431 :No nickname given")
			return
		}
		nick := msg.Parameters[0]
		if s.server.nickInUse(nick, s) {
			s.replyf("433 * %s :Nickname is already in use", nick)
		} else if !validNickname.MatchString(nick) {
			s.replyf("432 * %s :Erroneous nickname", nick)
		} else {
			s.server.changeNick(s, nick)
		}
	case Command_User:
		if len(msg.Parameters) < 4 {
			s.replyNeedMoreParams("USER")
			return
		}
		s.user = msg.Parameters[0]
		s.realname = msg.Parameters[3]
	case Command_Cap:
		s.onCap(msg)
	case Command_Quit:
		s.disconnect("Client quit")
		return
	case Command_Ping:
		s.onPing(msg)
	}
	s.maybeRegister()
}

func (s *Session) maybeRegister() {
	if s.registered() || s.closed || s.capNegotiating {
		return
	}
	if s.nick == "" || s.user == "" {
		return
	}
	s.phase = phaseRegistered
	s.log = s.log.With().Str("nick", s.nick).Logger()
	s.log.Info().Str("user", s.user).Msg("Registered")

	srv := s.server
	s.replyf("001 %s :Hi, welcome to IRC", s.nick)
	s.replyf("002 %s :Your host is %s, running version boardirc-%s", s.nick, srv.name, Version)
	s.replyf("003 %s :This server was created %s", s.nick, srv.created.UTC().Format("2006-01-02 15:04:05 UTC"))
	s.replyf("004 %s %s boardirc-%s o o", s.nick, srv.name, Version)
	s.sendLusers()
	s.sendMotd()
}

func (s *Session) handleCommand(msg *ClientMessage) {
	switch msg.Command {
	case Command_Away:
		s.onAway(msg)
	case Command_Cap:
		s.onCap(msg)
	case Command_Ison:
		s.onIson(msg)
	case Command_Join:
		s.onJoin(msg)
	case Command_List:
		s.onList(msg)
	case Command_Lusers:
		s.sendLusers()
	case Command_Mode:
		s.onMode(msg)
	case Command_Motd:
		s.sendMotd()
	case Command_Nick:
		s.onNick(msg)
	case Command_Notice, Command_Privmsg:
		s.onPrivmsg(msg)
	case Command_Part:
		s.onPart(msg)
	case Command_Pass, Command_User:
		s.replyf("462 %s :You may not reregister", s.nick)
	case Command_Ping:
		s.onPing(msg)
	case Command_Pong:
		s.pingSent = false
	case Command_Quit:
		s.onQuit(msg)
	case Command_Topic:
		s.onTopic(msg)
	case Command_Wallops:
		s.onWallops(msg)
	case Command_Who:
		s.onWho(msg)
	case Command_Whois:
		s.onWhois(msg)
	default:
		s.replyf("421 %s %s :Unknown command", s.nick, msg.RawCommand)
	}
}

func (s *Session) replyNeedMoreParams(cmd string) {
	s.replyf("461 %s %s :Not enough parameters", s.nickArgument(), cmd)
}

func (s *Session) replyNoSuchChannel(ch string) {
	s.replyf("403 %s %s :No such channel", s.nick, ch)
}

func (s *Session) replyNotOnChannel(ch string) {
	s.replyf("442 %s %s :You're not on that channel", s.nick, ch)
}

func (s *Session) replyTopic(ch *Channel) {
	if topic := ch.Topic(); topic != "" {
		s.replyf("332 %s %s :%s", s.nick, ch.Name(), topic)
	} else {
		s.replyf("331 %s %s :No topic is set", s.nick, ch.Name())
	}
}

func (s *Session) sendLusers() {
	s.replyf("251 %s :There are %d users and 0 services on 1 server", s.nick, len(s.server.nicks))
}

func (s *Session) sendMotd() {
	lines := s.server.cfg.motdLines()
	if len(lines) == 0 {
		s.replyf("422 %s :MOTD File is missing", s.nick)
		return
	}
	s.replyf("375 %s :- %s Message of the day -", s.nick, s.server.name)
	for _, line := range lines {
		s.replyf("372 %s :- %s", s.nick, strings.TrimRight(line, " \t"))
	}
	s.replyf("376 %s :End of /MOTD command", s.nick)
}

// messageChannel sends a command from this session to every member of ch.
func (s *Session) messageChannel(ch *Channel, command, rest string, includeSelf bool) {
	line := fmt.Sprintf(":%s %s %s", s.prefix(), command, rest)
	for _, member := range ch.Members() {
		if member != s || includeSelf {
			member.message(line)
		}
	}
}

// messageRelated sends line once to every session sharing a channel with
// this one.
func (s *Session) messageRelated(line string, includeSelf bool) {
	related := make(map[*Session]struct{})
	for _, ch := range s.channels {
		for member := range ch.members {
			related[member] = struct{}{}
		}
	}
	if includeSelf {
		related[s] = struct{}{}
	} else {
		delete(related, s)
	}
	for member := range related {
		member.message(line)
	}
}

func (s *Session) onCap(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.replyNeedMoreParams("CAP")
		return
	}

	switch sc := strings.ToUpper(msg.Parameters[0]); sc {
	case "LS":
		if !s.registered() {
			s.capNegotiating = true
		}
		s.replyf("CAP %s LS :", s.nickArgument())
	case "LIST":
		s.replyf("CAP %s LIST :", s.nickArgument())
	case "REQ":
		var caps string
		if len(msg.Parameters) > 1 {
			caps = msg.Parameters[1]
		}
		s.replyf("CAP %s NAK :%s", s.nickArgument(), caps)
	case "END":
		s.capNegotiating = false
		s.maybeRegister()
	default:
		s.replyf("410 %s %s :Invalid CAP command", s.nickArgument(), sc)
	}
}

func (s *Session) onAway(msg *ClientMessage) {
	if len(msg.Parameters) == 0 || msg.Parameters[0] == "" {
		s.away = ""
		s.replyf("305 %s :You are no longer marked as being away", s.nick)
		return
	}
	s.away = msg.Parameters[0]
	s.replyf("306 %s :You have been marked as being away", s.nick)
}

func (s *Session) onIson(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.replyNeedMoreParams("ISON")
		return
	}
	var online []string
	for _, param := range msg.Parameters {
		for nick := range strings.FieldsSeq(param) {
			if s.server.sessionByNick(nick) != nil {
				online = append(online, nick)
			}
		}
	}
	s.replyf("303 %s :%s", s.nick, strings.Join(online, " "))
}

func (s *Session) onJoin(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.replyNeedMoreParams("JOIN")
		return
	}
	if msg.Parameters[0] == "0" {
		for _, ch := range s.joinedChannels() {
			s.leave(ch, ch.Name(), "left")
		}
		return
	}

	names := strings.Split(msg.Parameters[0], ",")
	var keys []string
	if len(msg.Parameters) > 1 {
		keys = strings.Split(msg.Parameters[1], ",")
	}

	srv := s.server
	for i, name := range names {
		if _, ok := s.channels[ircLower(name)]; ok {
			continue
		}
		if !validChannelName.MatchString(name) {
			s.replyNoSuchChannel(name)
			continue
		}
		var key string
		if i < len(keys) {
			key = keys[i]
		}
		ch := srv.registry.GetOrCreate(name)
		if ch.Key() != "" && ch.Key() != key {
			s.replyf("475 %s %s :Cannot join channel (+k) - bad key", s.nick, name)
			srv.registry.DisposeIfEmpty(ch)
			continue
		}

		srv.registry.AddMember(ch, s)
		s.channels[ircLower(name)] = ch
		s.messageChannel(ch, "JOIN", name, true)
		srv.transcripts.Event(ch.Name(), s.nick, "joined")
		s.replyTopic(ch)
		nicks := make([]string, 0, ch.Len())
		for _, member := range ch.Members() {
			nicks = append(nicks, member.nick)
		}
		s.replyf("353 %s = %s :%s", s.nick, name, strings.Join(nicks, " "))
		s.replyf("366 %s %s :End of NAMES list", s.nick, name)

		srv.bridge.ClientJoined(s, ch)
	}
	srv.updateGauges()
}

// leave removes the session from ch after telling its members.
func (s *Session) leave(ch *Channel, partArgs, event string) {
	srv := s.server
	s.messageChannel(ch, "PART", partArgs, true)
	srv.transcripts.Event(ch.Name(), s.nick, event)
	delete(s.channels, ircLower(ch.Name()))
	srv.bridge.ClientLeft(s, ch)
	srv.registry.RemoveMember(ch, s)
	srv.updateGauges()
}

func (s *Session) onList(msg *ClientMessage) {
	var channels []*Channel
	if len(msg.Parameters) == 0 {
		channels = s.server.registry.All()
	} else {
		for name := range strings.SplitSeq(msg.Parameters[0], ",") {
			if ch := s.server.registry.Get(name); ch != nil {
				channels = append(channels, ch)
			}
		}
	}
	for _, ch := range channels {
		s.replyf("322 %s %s %d :%s", s.nick, ch.Name(), ch.Len(), ch.Topic())
	}
	s.replyf("323 %s :End of LIST", s.nick)
}

func (s *Session) onMode(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.replyNeedMoreParams("MODE")
		return
	}
	target := msg.Parameters[0]

	if ircLower(target) == ircLower(s.nick) {
		if len(msg.Parameters) == 1 {
			s.replyf("221 %s +", s.nick)
		} else {
			s.replyf("501 %s :Unknown MODE flag", s.nick)
		}
		return
	}

	srv := s.server
	ch := srv.registry.Get(target)
	if ch == nil {
		s.replyNoSuchChannel(target)
		return
	}
	member := ch.HasMember(s)

	if len(msg.Parameters) == 1 {
		modes := "+"
		if ch.Key() != "" {
			modes = "+k"
			if member {
				modes += " " + ch.Key()
			}
		}
		s.replyf("324 %s %s %s", s.nick, target, modes)
		return
	}

	switch flag := msg.Parameters[1]; flag {
	case "+k":
		if len(msg.Parameters) < 3 {
			s.replyNeedMoreParams("MODE")
			return
		}
		if !member {
			s.replyNotOnChannel(target)
			return
		}
		key := msg.Parameters[2]
		srv.registry.SetKey(ch, key)
		s.messageChannel(ch, "MODE", fmt.Sprintf("%s +k %s", ch.Name(), key), true)
		srv.transcripts.Event(ch.Name(), s.nick, "set channel key to "+key)
	case "-k":
		if !member {
			s.replyNotOnChannel(target)
			return
		}
		srv.registry.SetKey(ch, "")
		s.messageChannel(ch, "MODE", ch.Name()+" -k", true)
		srv.transcripts.Event(ch.Name(), s.nick, "removed channel key")
	default:
		s.replyf("472 %s %s :Unknown MODE flag", s.nick, flag)
	}
}

func (s *Session) onNick(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.reply("431 :No nickname given")
		return
	}
	nick := msg.Parameters[0]
	switch {
	case nick == s.nick:
	case s.server.nickInUse(nick, s):
		s.replyf("433 %s %s :Nickname is already in use", s.nick, nick)
	case !validNickname.MatchString(nick):
		s.replyf("432 %s %s :Erroneous Nickname", s.nick, nick)
	default:
		for _, ch := range s.joinedChannels() {
			s.server.transcripts.Event(ch.Name(), s.nick, "changed nickname to "+nick)
		}
		old := s.prefix()
		s.server.changeNick(s, nick)
		s.log = s.log.With().Str("nick", nick).Logger()
		s.messageRelated(fmt.Sprintf(":%s NICK %s", old, nick), true)
	}
}

func (s *Session) onPrivmsg(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.replyf("411 %s :No recipient given (%s)", s.nick, msg.RawCommand)
		return
	}
	if len(msg.Parameters) == 1 || msg.Parameters[1] == "" {
		s.replyf("412 %s :No text to send", s.nick)
		return
	}
	target, text := msg.Parameters[0], msg.Parameters[1]

	if other := s.server.sessionByNick(target); other != nil {
		other.message(fmt.Sprintf(":%s %s %s :%s", s.prefix(), msg.RawCommand, target, text))
		if other.away != "" && msg.Command == Command_Privmsg {
			s.replyf("301 %s %s :%s", s.nick, other.nick, other.away)
		}
		return
	}
	if ch, ok := s.channels[ircLower(target)]; ok {
		s.messageChannel(ch, msg.RawCommand, fmt.Sprintf("%s :%s", ch.Name(), text), false)
		s.server.transcripts.Message(ch.Name(), s.nick, text)
		return
	}
	s.replyf("401 %s %s :No such nick/channel", s.nick, target)
}

func (s *Session) onPart(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.replyNeedMoreParams("PART")
		return
	}
	partMsg := s.nick
	if len(msg.Parameters) > 1 {
		partMsg = msg.Parameters[1]
	}
	for name := range strings.SplitSeq(msg.Parameters[0], ",") {
		ch, ok := s.channels[ircLower(name)]
		switch {
		case !validChannelName.MatchString(name):
			s.replyNoSuchChannel(name)
		case !ok:
			s.replyNotOnChannel(name)
		default:
			s.leave(ch, fmt.Sprintf("%s :%s", name, partMsg), fmt.Sprintf("left (%s)", partMsg))
		}
	}
}

func (s *Session) onPing(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.replyf("409 %s :No origin specified", s.nickArgument())
		return
	}
	s.replyf("PONG %s :%s", s.server.name, msg.Parameters[0])
}

func (s *Session) onQuit(msg *ClientMessage) {
	reason := s.nick
	if len(msg.Parameters) > 0 {
		reason = msg.Parameters[0]
	}
	s.disconnect(reason)
}

func (s *Session) onTopic(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.replyNeedMoreParams("TOPIC")
		return
	}
	name := msg.Parameters[0]
	ch, ok := s.channels[ircLower(name)]
	if !ok {
		s.replyNotOnChannel(name)
		return
	}
	if len(msg.Parameters) == 1 {
		s.replyTopic(ch)
		return
	}
	topic := msg.Parameters[1]
	s.server.registry.SetTopic(ch, topic)
	s.messageChannel(ch, "TOPIC", fmt.Sprintf("%s :%s", name, topic), true)
	s.server.transcripts.Event(ch.Name(), s.nick, fmt.Sprintf("set topic to %q", topic))
}

func (s *Session) onWallops(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.replyNeedMoreParams("WALLOPS")
		return
	}
	for _, other := range s.server.registeredSessions() {
		other.message(fmt.Sprintf(":%s NOTICE %s :Global notice: %s", s.prefix(), other.nick, msg.Parameters[0]))
	}
}

func (s *Session) onWho(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		return
	}
	target := msg.Parameters[0]
	if ch, ok := s.channels[ircLower(target)]; ok {
		for _, member := range ch.Members() {
			s.replyf("352 %s %s %s %s %s %s H :0 %s",
				s.nick, target, member.user, member.host, s.server.name, member.nick, member.realname)
		}
	}
	s.replyf("315 %s %s :End of WHO list", s.nick, target)
}

func (s *Session) onWhois(msg *ClientMessage) {
	if len(msg.Parameters) == 0 {
		s.replyf("431 %s :No nickname given", s.nick)
		return
	}
	// WHOIS [server] nick
	name := msg.Parameters[len(msg.Parameters)-1]
	other := s.server.sessionByNick(name)
	if other == nil {
		s.replyf("401 %s %s :No such nick", s.nick, name)
		return
	}
	names := make([]string, 0, len(other.channels))
	for _, ch := range other.joinedChannels() {
		names = append(names, ch.Name())
	}
	s.replyf("311 %s %s %s %s * :%s", s.nick, other.nick, other.user, other.host, other.realname)
	s.replyf("312 %s %s %s :%s", s.nick, other.nick, s.server.name, s.server.name)
	if other.away != "" {
		s.replyf("301 %s %s :%s", s.nick, other.nick, other.away)
	}
	s.replyf("319 %s %s :%s", s.nick, other.nick, strings.Join(names, " "))
	s.replyf("318 %s %s :End of WHOIS list", s.nick, other.nick)
}
