package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/api"
	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/config"
	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/consult"
	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/datachannel"
	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/domain"
	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/media"
	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/negotiator"
	"github.com/Acon1tum/quanby-healthcare-v2-sub000/internal/rendezvous"
)

func main() {
	role := flag.String("role", "", "consultation role: doctor or patient")
	room := flag.String("room", "", "room code (doctor: empty generates one)")
	name := flag.String("name", "", "display name for the identity handshake")
	record := flag.String("record", "", "write raw VP8 frames of the remote video to this file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	r := domain.Role(*role)
	if !r.Valid() {
		logger.Fatal("role must be doctor or patient")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	// Fetch the session ticket: signaling URL, auth, ICE servers.
	apiClient := api.NewClient(cfg.APIBaseURL)
	ticket, err := apiClient.FetchTicket(ctx, cfg.AuthToken, cfg.ConsultationID)
	if err != nil {
		logger.Fatal("fetch ticket", zap.Error(err))
	}

	pipeline, err := media.NewPipeline(logger)
	if err != nil {
		logger.Fatal("media pipeline", zap.Error(err))
	}

	neg, err := negotiator.New(ticket.ICEServers, pipeline, logger)
	if err != nil {
		logger.Fatal("negotiator", zap.Error(err))
	}

	profile := consult.Profile{Role: r}
	if r == domain.RoleDoctor {
		profile.DoctorName = *name
	} else {
		profile.PatientName = *name
	}

	ctrl := consult.New(profile, cfg, neg, pipeline, logger)
	rdv := rendezvous.NewClient(ticket, ctrl, logger)
	ctrl.SetRendezvous(rdv)
	defer rdv.Close()

	code, err := ctrl.Join(ctx, *room)
	if err != nil {
		logger.Error("join", zap.Error(err))
		fmt.Fprintln(os.Stderr, consult.UserMessage(err))
		os.Exit(1)
	}
	fmt.Printf("room code: %s\n", code)
	defer ctrl.Leave()

	var recordOut *os.File
	if *record != "" {
		recordOut, err = os.Create(*record)
		if err != nil {
			logger.Fatal("open record file", zap.Error(err))
		}
		defer recordOut.Close()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ctrl.Events():
			switch ev.Kind {
			case consult.EventConnectionState:
				fmt.Printf("connection: %s\n", ev.Data.(domain.ConnectionState))
			case consult.EventRemoteStream:
				rs := ev.Data.(*domain.RemoteStream)
				fmt.Println("remote media arrived")
				if recordOut != nil && rs != nil && rs.Video != nil {
					go media.StreamRemoteVideo(rs.Video, recordOut, logger)
				}
			case consult.EventChannelOpen:
				fmt.Println("consultation channel open")
			case consult.EventPatientInfo:
				info := ev.Data.(datachannel.PatientInfo)
				fmt.Printf("patient: %s <%s>\n", info.PatientName, info.Email)
			case consult.EventDoctorInfo:
				info := ev.Data.(datachannel.DoctorInfo)
				fmt.Printf("doctor: %s (%s)\n", info.DoctorName, info.Specialization)
			case consult.EventScanRequested:
				fmt.Println("doctor requested a face scan")
			case consult.EventScanStatus:
				fmt.Printf("scan status: %s\n", ev.Data.(datachannel.FaceScanStatus).Status)
			case consult.EventScanResults:
				fmt.Printf("scan results: %s\n", ev.Data.(datachannel.FaceScanResults).Status)
			case consult.EventPeerLeft:
				fmt.Println("the other participant left")
			case consult.EventDisconnected:
				fmt.Println("lost connection to the consultation service")
			case consult.EventError:
				fmt.Fprintln(os.Stderr, consult.UserMessage(ev.Data.(error)))
			}
		}
	}
}
