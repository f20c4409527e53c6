package boardirc

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"
)

// maxLineLength is the longest accepted client line without its terminator.
const maxLineLength = 512

type Command int

const (
	Command_Unknown Command = iota
	Command_Pass
	Command_Nick
	Command_User
	Command_Quit
	Command_Join
	Command_Part
	Command_Mode
	Command_Topic
	Command_List
	Command_Privmsg
	Command_Notice
	Command_Who
	Command_Whois
	Command_Ping
	Command_Pong
	Command_Cap
	Command_Ison
	Command_Away
	Command_Lusers
	Command_Motd
	Command_Wallops
)

var commandsByName = map[string]Command{
	"PASS":    Command_Pass,
	"NICK":    Command_Nick,
	"USER":    Command_User,
	"QUIT":    Command_Quit,
	"JOIN":    Command_Join,
	"PART":    Command_Part,
	"MODE":    Command_Mode,
	"TOPIC":   Command_Topic,
	"LIST":    Command_List,
	"PRIVMSG": Command_Privmsg,
	"NOTICE":  Command_Notice,
	"WHO":     Command_Who,
	"WHOIS":   Command_Whois,
	"PING":    Command_Ping,
	"PONG":    Command_Pong,
	"CAP":     Command_Cap,
	"ISON":    Command_Ison,
	"AWAY":    Command_Away,
	"LUSERS":  Command_Lusers,
	"MOTD":    Command_Motd,
	"WALLOPS": Command_Wallops,
}

var (
	ErrMessageTooLong    = errors.New("message too long")
	ErrPrefixOnlyMessage = errors.New("message only contains prefix")
	ErrEmptyCommand      = errors.New("message does not contain command")
	ErrInvalidEncoding   = errors.New("message is not valid UTF-8")
)

// ClientMessage is a parsed message from the connected client.
type ClientMessage struct {
	// Prefix is the optional message prefix. The colon prefix is not
	// included in this string.
	Prefix string

	// RawCommand is the command provided by the client, upper cased.
	RawCommand string

	// Command is the parsed command from the client, or
	// Command_Unknown if it cannot be parsed.
	Command

	// Parameters contains all command parameters, including the
	// trailing parameter as the last element of the slice.
	Parameters []string
}

// splitLines removes every complete line from buf. Lines end in LF or CR LF;
// the terminators are not part of the returned lines. The unterminated rest
// is returned for the next read.
func splitLines(buf []byte) (lines [][]byte, rest []byte) {
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			return lines, buf
		}
		line := buf[:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		lines = append(lines, line)
		buf = buf[i+1:]
	}
}

// ParseSingleClientMessage parses a message from a single IRC
// line. The CR LF delimiter must have been removed.
func ParseSingleClientMessage(msg []byte) (*ClientMessage, error) {
	if len(msg) > maxLineLength {
		return nil, ErrMessageTooLong
	}
	if !utf8.Valid(msg) {
		return nil, ErrInvalidEncoding
	}

	var (
		prefix      string
		inPrefix    bool
		startPrefix int

		command      string
		inCommand    bool
		startCommand int

		args []string

		inStandardArg bool
		inTrailingArg bool
		startArg      int
	)

ForEachByte:
	for i, b := range msg {
		switch {
		case i == 0 && b == ':':
			inPrefix = true
			startPrefix = i + 1
		case i == 0:
			inCommand = true
			startCommand = 0
		case inPrefix && b == ' ':
			inPrefix = false
			inCommand = true
			startCommand = i + 1
			prefix = string(msg[startPrefix:i])
		case inPrefix:
			// Simply advance the index and accumulate the prefix.
		case inCommand && b == ' ' && i == startCommand:
			// Extra spaces between prefix and command.
			startCommand = i + 1
		case inCommand && b == ' ':
			inCommand = false
			command = string(msg[startCommand:i])
		case inCommand:
			// Simply advance the index and accumulate the command.
		case inStandardArg && b == ' ':
			inStandardArg = false
			args = append(args, string(msg[startArg:i]))
		case inStandardArg:
			// Simply advance the index and accumulate the argument.
		case b == ' ':
			// Skip spaces when not in an existing context.
		case b == ':':
			// Must be trailing.
			inTrailingArg = true
			startArg = i + 1
			break ForEachByte
		default:
			// Must start a new argument.
			inStandardArg = true
			startArg = i
		}
	}

	switch {
	case inPrefix:
		return nil, ErrPrefixOnlyMessage
	case inCommand && startCommand < len(msg):
		command = string(msg[startCommand:])
	case inCommand, command == "":
		return nil, ErrEmptyCommand
	case inStandardArg:
		args = append(args, string(msg[startArg:]))
	case inTrailingArg && startArg < len(msg):
		args = append(args, string(msg[startArg:]))
	case inTrailingArg:
		args = append(args, "") // Allow empty string as a special case
	}

	command = strings.ToUpper(command)
	return &ClientMessage{
		Prefix:     prefix,
		RawCommand: command,
		Command:    commandsByName[command],
		Parameters: args,
	}, nil
}
