// voicectl talks to a running voice-orchestrator: it sends a text message or
// a recorded voice turn, prints the reply and saves the spoken reply.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/book-expert/logger"
)

// Flag descriptions.
const (
	flagServerDesc       = "Base URL of the voice-orchestrator"
	flagTextDesc         = "Text message to send"
	flagAudioDesc        = "Recorded voice turn to send (wav, mp3, ogg, flac or webm)"
	flagSpeakDesc        = "Ask for the reply to be spoken and save it to -output"
	flagOutputDesc       = "Output file path for the spoken reply"
	flagHealthDesc       = "Check service health and exit"
	flagPollIntervalDesc = "Interval between polls for the spoken reply"
	flagTimeoutDesc      = "Overall deadline of the command"
)

// Flag names.
const (
	flagServer       = "server"
	flagText         = "text"
	flagAudio        = "audio"
	flagSpeak        = "speak"
	flagOutput       = "output"
	flagHealth       = "health"
	flagPollInterval = "poll-interval"
	flagTimeout      = "timeout"
)

// Error messages.
const (
	errEitherTextOrAudio  = "either -text or -audio must be provided"
	errCannotSpecifyBoth  = "cannot specify both -text and -audio"
	errPollIntervalLength = "-poll-interval must be positive"
	errFailedToInitLogger = "failed to initialize logger: %w"
	errFailedToReadAudio  = "failed to read audio file: %w"
)

// Output and log messages.
const (
	msgServiceHealthy    = "Service is %s\n"
	msgCollaborator      = "  %-12s %s %s\n"
	msgTranscript        = "You said: %s\n"
	msgAnalysis          = "Emotion: %s  Environment: %s\n"
	msgReply             = "Reply (%s): %s\n"
	msgSpeechSaved       = "Spoken reply saved to %s\n"
	msgSpeechUnrequested = "Reply was not submitted for speech\n"
	logRequestSent       = "Sending %s to %s"
	logSpeechSaved       = "Saved %d bytes of speech from %s to %s"
)

const (
	defaultServer       = "http://localhost:8080"
	defaultOutputFile   = "reply.wav"
	defaultPollInterval = 500 * time.Millisecond
	defaultTimeout      = 5 * time.Minute
	logFileName         = "voicectl.log"
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	server       string
	text         string
	audio        string
	output       string
	speak        bool
	health       bool
	pollInterval time.Duration
	timeout      time.Duration
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	clientLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}

	defer func() { _ = clientLog.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	api := newClient(flags.server, flags.pollInterval, clientLog)

	if flags.health {
		return printHealth(ctx, api, out)
	}

	if flags.text != "" {
		return sendMessage(ctx, api, flags, out)
	}

	return sendVoiceTurn(ctx, api, flags, out)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("voicectl", flag.ContinueOnError)
	flagSet.StringVar(&flags.server, flagServer, defaultServer, flagServerDesc)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.audio, flagAudio, "", flagAudioDesc)
	flagSet.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flagSet.BoolVar(&flags.speak, flagSpeak, false, flagSpeakDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.DurationVar(&flags.pollInterval, flagPollInterval, defaultPollInterval, flagPollIntervalDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validateFlags checks for required and conflicting arguments.
func validateFlags(flags appFlags) error {
	if flags.pollInterval <= 0 {
		return errors.New(errPollIntervalLength)
	}

	if flags.health {
		return nil
	}

	if flags.text == "" && flags.audio == "" {
		return errors.New(errEitherTextOrAudio)
	}

	if flags.text != "" && flags.audio != "" {
		return errors.New(errCannotSpecifyBoth)
	}

	return nil
}

func printHealth(ctx context.Context, api *client, out io.Writer) error {
	health, err := api.Health(ctx)
	if health.Status != "" {
		fmt.Fprintf(out, msgServiceHealthy, health.Status)

		for name, collaborator := range health.Collaborators {
			fmt.Fprintf(out, msgCollaborator, name, collaborator.Status, collaborator.Error)
		}
	}

	return err
}

func sendMessage(ctx context.Context, api *client, flags appFlags, out io.Writer) error {
	reply, err := api.Message(ctx, flags.text, flags.speak)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, msgReply, reply.Emotion, reply.Response)

	return saveSpeech(ctx, api, flags, reply.AudioURL, out)
}

func sendVoiceTurn(ctx context.Context, api *client, flags appFlags, out io.Writer) error {
	data, err := os.ReadFile(flags.audio)
	if err != nil {
		return fmt.Errorf(errFailedToReadAudio, err)
	}

	turn, err := api.VoiceTurn(ctx, data, flags.speak)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, msgTranscript, turn.Analysis.Text)
	fmt.Fprintf(out, msgAnalysis, turn.Analysis.Emotion, turn.Analysis.Environment)
	fmt.Fprintf(out, msgReply, turn.Analysis.Emotion, turn.Response)

	return saveSpeech(ctx, api, flags, turn.AudioURL, out)
}

func saveSpeech(ctx context.Context, api *client, flags appFlags, audioURL string, out io.Writer) error {
	if !flags.speak {
		return nil
	}

	if audioURL == "" {
		fmt.Fprint(out, msgSpeechUnrequested)

		return nil
	}

	speech, err := api.AwaitSpeech(ctx, audioURL)
	if err != nil {
		return err
	}

	err = os.WriteFile(flags.output, speech, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", flags.output, err)
	}

	api.log.Info(logSpeechSaved, len(speech), audioURL, flags.output)
	fmt.Fprintf(out, msgSpeechSaved, flags.output)

	return nil
}
