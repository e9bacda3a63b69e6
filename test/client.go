package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/dinanjanan/cryostat-probe/pkg/protocol"
)

// 订阅 Redis 频道并打印扫场数据
func main() {
	addr := flag.String("redis", "localhost:6379", "Redis 地址")
	channel := flag.String("channel", "fieldsweep_data", "订阅频道")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: *addr})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("连接Redis失败: %v", err)
	}

	sub := client.Subscribe(ctx, *channel)
	defer sub.Close()
	fmt.Printf("已订阅: %s@%s\n", *channel, *addr)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("退出")
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg protocol.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Printf("解析失败: %v", err)
				continue
			}
			switch msg.Type {
			case protocol.MessageTypeSample:
				s := msg.Sample
				fmt.Printf("[%s #%d] B=%+.5f T  I=%+.4e A  V=%.6e V  R=%.6e Ω\n",
					short(msg.RunID), msg.Index, s.Field, s.Current, s.Voltage, s.Resistance)
			case protocol.MessageTypeProgress:
				fmt.Printf("[%s] 进度 %.1f%%\n", short(msg.RunID), msg.Progress)
			case protocol.MessageTypeState:
				fmt.Printf("[%s] 状态 %s %s\n", short(msg.RunID), msg.State, msg.Error)
			}
		}
	}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
